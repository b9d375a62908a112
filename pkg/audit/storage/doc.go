// Package storage provides audit record persistence backends.
package storage

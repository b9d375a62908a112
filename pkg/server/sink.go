package server

import (
	"context"

	"hireloop/gatehouse/pkg/audit"
	"hireloop/gatehouse/pkg/audit/recorder"
	"hireloop/gatehouse/pkg/middleware"
	"hireloop/gatehouse/pkg/throttle"
)

// DenialSink writes throttle denials to the audit trail. It implements
// throttle.AuditSink on top of the async recorder, so it never blocks the
// decision path.
type DenialSink struct {
	recorder *recorder.Recorder
}

// NewDenialSink creates a denial sink backed by the given recorder.
func NewDenialSink(rec *recorder.Recorder) *DenialSink {
	return &DenialSink{recorder: rec}
}

// RecordDenial records a denied decision. Request metadata comes from the
// context placed there by the Principal middleware. Denials evaluated
// outside a request carry no metadata and are skipped, the caller's own
// audit path covers those. The request is marked so the access log does
// not record it a second time.
func (s *DenialSink) RecordDenial(ctx context.Context, d throttle.Denial) {
	info := middleware.RequestInfoFromContext(ctx)
	if info == nil {
		return
	}
	info.DenialRecorded = true

	s.recorder.Record(ctx, &audit.Record{
		PrincipalID: d.PrincipalID,
		SourceAddr:  info.SourceAddr,
		Path:        info.Path,
		Method:      info.Method,
		StatusCode:  d.StatusCode,
	})
}

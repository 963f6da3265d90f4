package sentinel

import "encoding/json"

// auditRecord is the one-JSON-line-per-verdict shape global.audit_logging
// writes through the facade's logger.
type auditRecord struct {
	Tool    string   `json:"tool"`
	Verdict string   `json:"verdict"`
	Reason  string   `json:"reason,omitempty"`
	Flags   []string `json:"flags,omitempty"`
}

func (s *Sentinel) audit(name string, v Verdict) {
	s.record(v)

	if !s.config.Global.AuditLogging {
		return
	}
	rec := auditRecord{Tool: name, Verdict: v.Kind.String()}
	switch v.Kind {
	case Block:
		rec.Reason = v.Reason.String()
	case Review:
		for _, f := range v.Flags {
			rec.Flags = append(rec.Flags, f.String())
		}
	}
	line, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("marshaling audit record for %q: %v", name, err)
		return
	}
	s.logger.Info("%s", line)
}

// record forwards v to the configured metrics sink, independent of
// whether audit logging is enabled.
func (s *Sentinel) record(v Verdict) {
	if s.metrics == nil {
		return
	}
	var reasonLabel string
	var flagLabels []string
	switch v.Kind {
	case Block:
		reasonLabel = v.Reason.Label()
	case Review:
		for _, f := range v.Flags {
			flagLabels = append(flagLabels, f.Label())
		}
	}
	s.metrics.ObserveVerdict(v.Kind.String(), reasonLabel, flagLabels)
}

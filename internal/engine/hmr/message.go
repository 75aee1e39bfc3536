package hmr

import "go.trai.ch/kiln/internal/core/domain"

// MessageFor converts a classification into the message pushed to clients.
func MessageFor(trace domain.HMRDecisionTrace, timestamp int64) domain.HMRMessage {
	if trace.Decision == domain.DecisionReload {
		return domain.HMRMessage{
			Type: domain.MessageReload,
			Payload: domain.ReloadPayload{
				Reason: trace.Reason,
				Paths:  trace.ChangeSet,
			},
		}
	}
	return domain.HMRMessage{
		Type: domain.MessageUpdate,
		Payload: domain.UpdatePayload{
			Modules:    trace.AffectedModules,
			Boundaries: trace.Boundaries,
			Unsafe:     trace.Unsafe,
			Timestamp:  timestamp,
		},
	}
}

// ErrorMessage reports a failed rebuild of target.
func ErrorMessage(err error, target string) domain.HMRMessage {
	return domain.HMRMessage{
		Type:    domain.MessageError,
		Payload: domain.ErrorPayload{Message: err.Error(), Target: target},
	}
}

// StatusMessage reports build progress.
func StatusMessage(state, runID string, hitRatio float64) domain.HMRMessage {
	return domain.HMRMessage{
		Type:    domain.MessageStatus,
		Payload: domain.StatusPayload{State: state, RunID: runID, HitRatio: hitRatio},
	}
}

package station

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charging-platform/station-fleet-simulator/internal/domain/chargingprofile"
	"github.com/charging-platform/station-fleet-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-fleet-simulator/internal/eventsink"
	"github.com/charging-platform/station-fleet-simulator/internal/metrics"
	"github.com/charging-platform/station-fleet-simulator/internal/profilestore"
	"github.com/charging-platform/station-fleet-simulator/internal/transport"
)

// handleInbound dispatches an inbound CALL per spec.md §4.E's handler table.
func (s *Session) handleInbound(ctx context.Context, action string, payload json.RawMessage) (interface{}, *transport.CallError) {
	switch action {
	case string(ocpp16.ActionReset):
		return s.handleReset(payload)
	case string(ocpp16.ActionRemoteStartTransaction):
		return s.handleRemoteStart(payload)
	case string(ocpp16.ActionRemoteStopTransaction):
		return s.handleRemoteStop(payload)
	case string(ocpp16.ActionSetChargingProfile):
		return s.handleSetChargingProfile(payload)
	case string(ocpp16.ActionGetCompositeSchedule):
		return s.handleGetCompositeSchedule(payload)
	case string(ocpp16.ActionClearChargingProfile):
		return s.handleClearChargingProfile(payload)
	default:
		return nil, &transport.CallError{
			ErrorCode:        "NotImplemented",
			ErrorDescription: "action not supported by this station",
		}
	}
}

func notSupported(err error) *transport.CallError {
	return &transport.CallError{ErrorCode: "FormationViolation", ErrorDescription: err.Error()}
}

func (s *Session) handleReset(payload json.RawMessage) (interface{}, *transport.CallError) {
	var req ocpp16.ResetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, notSupported(err)
	}
	s.logf("reset requested: type=%s", req.Type)
	return ocpp16.ResetResponse{Status: ocpp16.ResetStatusAccepted}, nil
}

func (s *Session) handleRemoteStart(payload json.RawMessage) (interface{}, *transport.CallError) {
	var req ocpp16.RemoteStartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, notSupported(err)
	}
	s.logf("remote start requested for idTag=%s", req.IdTag)
	return ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusAccepted}, nil
}

func (s *Session) handleRemoteStop(payload json.RawMessage) (interface{}, *transport.CallError) {
	var req ocpp16.RemoteStopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, notSupported(err)
	}
	s.logf("remote stop requested for transaction=%d", req.TransactionId)
	return ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusAccepted}, nil
}

// handleSetChargingProfile implements spec.md §4.A+§4.B's parse -> validate
// -> store pipeline; any failure surfaces as Rejected and never crashes the
// session.
func (s *Session) handleSetChargingProfile(payload json.RawMessage) (interface{}, *transport.CallError) {
	var req ocpp16.SetChargingProfileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.logf("set charging profile: malformed payload: %v", err)
		return ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusRejected}, nil
	}
	if err := s.validate.ValidateStruct(req); err != nil {
		s.logf("set charging profile: %v", err)
		return ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusRejected}, nil
	}

	profile, err := chargingprofile.Parse(req.CsChargingProfiles)
	if err != nil {
		s.logf("set charging profile: parse failed: %v", err)
		metrics.ProfilesRejected.WithLabelValues(string(req.CsChargingProfiles.ChargingProfilePurpose)).Inc()
		return ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusRejected}, nil
	}
	if err := chargingprofile.Validate(profile); err != nil {
		s.logf("set charging profile: validate failed: %v", err)
		metrics.ProfilesRejected.WithLabelValues(string(profile.Purpose)).Inc()
		return ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusRejected}, nil
	}

	result := s.store.Add(req.ConnectorId, profile)
	if result != profilestore.AddOk {
		s.logf("set charging profile: %s", result)
		metrics.ProfilesRejected.WithLabelValues(string(profile.Purpose)).Inc()
		return ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusRejected}, nil
	}

	metrics.ProfilesAccepted.WithLabelValues(string(profile.Purpose)).Inc()
	s.publish(eventsink.Record{
		StationID:   s.cfg.StationID,
		Kind:        eventsink.KindProfile,
		Description: fmt.Sprintf("set chargingProfileId=%d connector=%d", profile.ID, req.ConnectorId),
	})
	return ocpp16.SetChargingProfileResponse{Status: ocpp16.ChargingProfileStatusAccepted}, nil
}

// handleGetCompositeSchedule implements spec.md §4.C's composite-schedule query.
func (s *Session) handleGetCompositeSchedule(payload json.RawMessage) (interface{}, *transport.CallError) {
	var req ocpp16.GetCompositeScheduleRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ocpp16.GetCompositeScheduleResponse{Status: ocpp16.GetCompositeScheduleStatusRejected}, nil
	}

	unit := chargingprofile.RateUnitW
	if req.ChargingRateUnit != nil {
		switch *req.ChargingRateUnit {
		case ocpp16.ChargingRateUnitA:
			unit = chargingprofile.RateUnitA
		}
	}

	metrics.CompositeScheduleQueries.Inc()
	now := time.Now().UTC()
	duration := time.Duration(req.Duration) * time.Second
	schedule, ok := s.resolver.CompositeSchedule(req.ConnectorId, duration, unit, now)
	if !ok {
		return ocpp16.GetCompositeScheduleResponse{Status: ocpp16.GetCompositeScheduleStatusRejected}, nil
	}

	wire := chargingprofile.SerializeSchedule(*schedule)
	connID := req.ConnectorId
	return ocpp16.GetCompositeScheduleResponse{
		Status:           ocpp16.GetCompositeScheduleStatusAccepted,
		ConnectorId:      &connID,
		ScheduleStart:    &ocpp16.DateTime{Time: now},
		ChargingSchedule: &wire,
	}, nil
}

// handleClearChargingProfile implements spec.md §4.B's clear with the
// connectorId=0-means-all-connectors OCPP boundary rule (§6.2).
func (s *Session) handleClearChargingProfile(payload json.RawMessage) (interface{}, *transport.CallError) {
	var req ocpp16.ClearChargingProfileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusUnknown}, nil
	}

	filter := profilestore.ClearFilter{ProfileID: req.Id, StackLevel: req.StackLevel}
	if req.ChargingProfilePurpose != nil {
		purpose := chargingprofile.Purpose(*req.ChargingProfilePurpose)
		filter.Purpose = &purpose
	}
	if req.ConnectorId != nil && *req.ConnectorId != 0 {
		filter.ConnectorID = req.ConnectorId
	}

	removed := s.store.Clear(filter)
	if removed == 0 {
		return ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusUnknown}, nil
	}
	s.logf("cleared %d charging profile(s)", removed)
	return ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusAccepted}, nil
}

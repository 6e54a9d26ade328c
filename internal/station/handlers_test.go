package station

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charging-platform/station-fleet-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/station-fleet-simulator/internal/domain/validation"
	"github.com/charging-platform/station-fleet-simulator/internal/eventsink"
	"github.com/charging-platform/station-fleet-simulator/internal/logger"
	"github.com/charging-platform/station-fleet-simulator/internal/profilestore"
	"github.com/charging-platform/station-fleet-simulator/internal/schedule"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	log, err := logger.New(logger.DefaultConfig())
	require.NoError(t, err)

	store := profilestore.New()
	return &Session{
		cfg:      Config{StationID: "PY-SIM-TEST"},
		store:    store,
		resolver: schedule.New(store),
		validate: validation.NewValidator(),
		sink:     eventsink.NoopSink{},
		logger:   log,
		logs:     NewLogRing(logRingCapacity),
	}
}

func marshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestHandleReset_Accepted(t *testing.T) {
	s := newTestSession(t)
	resp, callErr := s.handleReset(marshal(t, ocpp16.ResetRequest{Type: ocpp16.ResetTypeSoft}))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.ResetResponse{Status: ocpp16.ResetStatusAccepted}, resp)
}

func TestHandleRemoteStartStop_Accepted(t *testing.T) {
	s := newTestSession(t)

	startResp, callErr := s.handleRemoteStart(marshal(t, ocpp16.RemoteStartTransactionRequest{IdTag: "RFID000001"}))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.RemoteStartStopStatusAccepted, startResp.(ocpp16.RemoteStartTransactionResponse).Status)

	stopResp, callErr := s.handleRemoteStop(marshal(t, ocpp16.RemoteStopTransactionRequest{TransactionId: 42}))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.RemoteStartStopStatusAccepted, stopResp.(ocpp16.RemoteStopTransactionResponse).Status)
}

func chargingProfileWire(id int, purpose ocpp16.ChargingProfilePurpose, stackLevel int) ocpp16.ChargingProfile {
	return ocpp16.ChargingProfile{
		ChargingProfileId:      id,
		StackLevel:             stackLevel,
		ChargingProfilePurpose: purpose,
		ChargingProfileKind:    ocpp16.ChargingProfileKindAbsolute,
		ChargingSchedule: ocpp16.ChargingSchedule{
			ChargingRateUnit:       ocpp16.ChargingRateUnitW,
			ChargingSchedulePeriod: []ocpp16.ChargingSchedulePeriod{{StartPeriod: 0, Limit: 11000}},
			StartSchedule:          &ocpp16.DateTime{Time: time.Date(2026, 1, 8, 10, 0, 0, 0, time.UTC)},
		},
	}
}

func TestHandleSetChargingProfile_AcceptsValidProfile(t *testing.T) {
	s := newTestSession(t)

	req := ocpp16.SetChargingProfileRequest{
		ConnectorId:        1,
		CsChargingProfiles: chargingProfileWire(1, ocpp16.ChargingProfilePurposeTxDefaultProfile, 0),
	}
	resp, callErr := s.handleSetChargingProfile(marshal(t, req))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.ChargingProfileStatusAccepted, resp.(ocpp16.SetChargingProfileResponse).Status)
	require.Len(t, s.store.ListForConnector(1), 1)
}

func TestHandleSetChargingProfile_RejectsConflictingStack(t *testing.T) {
	s := newTestSession(t)

	first := ocpp16.SetChargingProfileRequest{
		ConnectorId:        1,
		CsChargingProfiles: chargingProfileWire(1, ocpp16.ChargingProfilePurposeTxDefaultProfile, 0),
	}
	_, callErr := s.handleSetChargingProfile(marshal(t, first))
	require.Nil(t, callErr)

	second := ocpp16.SetChargingProfileRequest{
		ConnectorId:        1,
		CsChargingProfiles: chargingProfileWire(2, ocpp16.ChargingProfilePurposeTxDefaultProfile, 0),
	}
	resp, callErr := s.handleSetChargingProfile(marshal(t, second))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.ChargingProfileStatusRejected, resp.(ocpp16.SetChargingProfileResponse).Status)
}

func TestHandleSetChargingProfile_RejectsMalformedPayload(t *testing.T) {
	s := newTestSession(t)
	resp, callErr := s.handleSetChargingProfile(json.RawMessage(`{not json`))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.ChargingProfileStatusRejected, resp.(ocpp16.SetChargingProfileResponse).Status)
}

func TestHandleGetCompositeSchedule_AcceptedAfterProfileStored(t *testing.T) {
	s := newTestSession(t)
	req := ocpp16.SetChargingProfileRequest{
		ConnectorId:        1,
		CsChargingProfiles: chargingProfileWire(1, ocpp16.ChargingProfilePurposeTxDefaultProfile, 0),
	}
	_, callErr := s.handleSetChargingProfile(marshal(t, req))
	require.Nil(t, callErr)

	getReq := ocpp16.GetCompositeScheduleRequest{ConnectorId: 1, Duration: 600}
	resp, callErr := s.handleGetCompositeSchedule(marshal(t, getReq))
	require.Nil(t, callErr)
	out := resp.(ocpp16.GetCompositeScheduleResponse)
	require.Equal(t, ocpp16.GetCompositeScheduleStatusAccepted, out.Status)
	require.NotNil(t, out.ChargingSchedule)
}

func TestHandleGetCompositeSchedule_RejectedWhenNoProfilesApply(t *testing.T) {
	s := newTestSession(t)
	getReq := ocpp16.GetCompositeScheduleRequest{ConnectorId: 1, Duration: 600}
	resp, callErr := s.handleGetCompositeSchedule(marshal(t, getReq))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.GetCompositeScheduleStatusRejected, resp.(ocpp16.GetCompositeScheduleResponse).Status)
}

func TestHandleClearChargingProfile_UnknownWhenNothingRemoved(t *testing.T) {
	s := newTestSession(t)
	resp, callErr := s.handleClearChargingProfile(marshal(t, ocpp16.ClearChargingProfileRequest{}))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.ClearChargingProfileStatusUnknown, resp.(ocpp16.ClearChargingProfileResponse).Status)
}

func TestHandleClearChargingProfile_AcceptedWhenMatched(t *testing.T) {
	s := newTestSession(t)
	req := ocpp16.SetChargingProfileRequest{
		ConnectorId:        1,
		CsChargingProfiles: chargingProfileWire(1, ocpp16.ChargingProfilePurposeTxDefaultProfile, 0),
	}
	_, callErr := s.handleSetChargingProfile(marshal(t, req))
	require.Nil(t, callErr)

	id := 1
	resp, callErr := s.handleClearChargingProfile(marshal(t, ocpp16.ClearChargingProfileRequest{Id: &id}))
	require.Nil(t, callErr)
	require.Equal(t, ocpp16.ClearChargingProfileStatusAccepted, resp.(ocpp16.ClearChargingProfileResponse).Status)
}

func TestHandleInbound_UnknownActionReturnsCallError(t *testing.T) {
	s := newTestSession(t)
	_, callErr := s.handleInbound(nil, "SomeUnknownAction", json.RawMessage(`{}`))
	require.NotNil(t, callErr)
}

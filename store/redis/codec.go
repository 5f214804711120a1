package redis

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/audit"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// Wire records keep IDs as strings and durations as nanoseconds so the
// msgpack layout stays stable independently of the domain types.

type operationRecord struct {
	ID              string     `msgpack:"id"`
	Kind            string     `msgpack:"kind"`
	ResourceGUID    string     `msgpack:"resource_guid"`
	Parameters      []byte     `msgpack:"parameters,omitempty"`
	ActorGUID       string     `msgpack:"actor_guid,omitempty"`
	ActorName       string     `msgpack:"actor_name,omitempty"`
	AuditHash       string     `msgpack:"audit_hash,omitempty"`
	State           string     `msgpack:"state"`
	FirstAttempt    bool       `msgpack:"first_attempt"`
	BrokerOperation string     `msgpack:"broker_operation,omitempty"`
	PollingInterval int64      `msgpack:"polling_interval"`
	MaxDuration     int64      `msgpack:"max_duration"`
	Attempts        int        `msgpack:"attempts"`
	LastError       string     `msgpack:"last_error,omitempty"`
	WorkerID        string     `msgpack:"worker_id,omitempty"`
	RunAt           time.Time  `msgpack:"run_at"`
	FirstStartedAt  *time.Time `msgpack:"first_started_at,omitempty"`
	StartedAt       *time.Time `msgpack:"started_at,omitempty"`
	CompletedAt     *time.Time `msgpack:"completed_at,omitempty"`
	CreatedAt       time.Time  `msgpack:"created_at"`
	UpdatedAt       time.Time  `msgpack:"updated_at"`
}

func encodeOperation(op *operation.Operation) ([]byte, error) {
	r := &operationRecord{
		ID:              op.ID.String(),
		Kind:            string(op.Kind),
		ResourceGUID:    op.ResourceGUID,
		Parameters:      op.Parameters,
		ActorGUID:       op.AuditInfo.UserGUID,
		ActorName:       op.AuditInfo.UserName,
		AuditHash:       op.AuditHash,
		State:           string(op.State),
		FirstAttempt:    op.FirstAttempt,
		BrokerOperation: op.BrokerOperation,
		PollingInterval: op.PollingInterval.Nanoseconds(),
		MaxDuration:     op.MaxDuration.Nanoseconds(),
		Attempts:        op.Attempts,
		LastError:       op.LastError,
		RunAt:           op.RunAt,
		FirstStartedAt:  op.FirstStartedAt,
		StartedAt:       op.StartedAt,
		CompletedAt:     op.CompletedAt,
		CreatedAt:       op.CreatedAt,
		UpdatedAt:       op.UpdatedAt,
	}
	if !op.WorkerID.IsNil() {
		r.WorkerID = op.WorkerID.String()
	}
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("ccng/redis: encode operation: %w", err)
	}
	return data, nil
}

func decodeOperation(data []byte) (*operation.Operation, error) {
	var r operationRecord
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ccng/redis: decode operation: %w", err)
	}

	parsedID, err := id.ParseOperationID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("ccng/redis: parse operation id %q: %w", r.ID, err)
	}

	op := &operation.Operation{
		Entity: ccng.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:           parsedID,
		Kind:         operation.Kind(r.Kind),
		ResourceGUID: r.ResourceGUID,
		Parameters:   r.Parameters,
		AuditInfo: operation.AuditInfo{
			UserGUID: r.ActorGUID,
			UserName: r.ActorName,
		},
		AuditHash:       r.AuditHash,
		State:           operation.State(r.State),
		FirstAttempt:    r.FirstAttempt,
		BrokerOperation: r.BrokerOperation,
		PollingInterval: time.Duration(r.PollingInterval),
		MaxDuration:     time.Duration(r.MaxDuration),
		Attempts:        r.Attempts,
		LastError:       r.LastError,
		RunAt:           r.RunAt,
		FirstStartedAt:  r.FirstStartedAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}

	if r.WorkerID != "" {
		if parsedWorker, wErr := id.ParseWorkerID(r.WorkerID); wErr == nil {
			op.WorkerID = parsedWorker
		}
	}

	return op, nil
}

type bindingRecord struct {
	GUID                string    `msgpack:"guid"`
	Kind                string    `msgpack:"kind"`
	ServiceInstanceGUID string    `msgpack:"service_instance_guid"`
	ServiceID           string    `msgpack:"service_id,omitempty"`
	PlanID              string    `msgpack:"plan_id,omitempty"`
	Name                string    `msgpack:"name,omitempty"`
	AppGUID             string    `msgpack:"app_guid,omitempty"`
	RouteURL            string    `msgpack:"route_url,omitempty"`
	Retrievable         bool      `msgpack:"retrievable"`
	Credentials         []byte    `msgpack:"credentials,omitempty"`
	RouteServiceURL     string    `msgpack:"route_service_url,omitempty"`
	MaxPollingDuration  int64     `msgpack:"max_polling_duration"`
	LastOpType          string    `msgpack:"last_operation_type,omitempty"`
	LastOpState         string    `msgpack:"last_operation_state,omitempty"`
	LastOpDescription   string    `msgpack:"last_operation_description,omitempty"`
	LastOpUpdatedAt     time.Time `msgpack:"last_operation_updated_at,omitempty"`
	CreatedAt           time.Time `msgpack:"created_at"`
	UpdatedAt           time.Time `msgpack:"updated_at"`
}

func encodeBinding(b *binding.Binding) ([]byte, error) {
	r := &bindingRecord{
		GUID:                b.GUID,
		Kind:                string(b.Kind),
		ServiceInstanceGUID: b.ServiceInstanceGUID,
		ServiceID:           b.ServiceID,
		PlanID:              b.PlanID,
		Name:                b.Name,
		AppGUID:             b.AppGUID,
		RouteURL:            b.RouteURL,
		Retrievable:         b.Retrievable,
		Credentials:         b.Credentials,
		RouteServiceURL:     b.RouteServiceURL,
		MaxPollingDuration:  b.MaxPollingDuration.Nanoseconds(),
		LastOpType:          b.LastOperation.Type,
		LastOpState:         string(b.LastOperation.State),
		LastOpDescription:   b.LastOperation.Description,
		LastOpUpdatedAt:     b.LastOperation.UpdatedAt,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
	data, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("ccng/redis: encode binding: %w", err)
	}
	return data, nil
}

func decodeBinding(data []byte) (*binding.Binding, error) {
	var r bindingRecord
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ccng/redis: decode binding: %w", err)
	}

	return &binding.Binding{
		Entity: ccng.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		GUID:                r.GUID,
		Kind:                operation.Kind(r.Kind),
		ServiceInstanceGUID: r.ServiceInstanceGUID,
		ServiceID:           r.ServiceID,
		PlanID:              r.PlanID,
		Name:                r.Name,
		AppGUID:             r.AppGUID,
		RouteURL:            r.RouteURL,
		Retrievable:         r.Retrievable,
		Credentials:         r.Credentials,
		RouteServiceURL:     r.RouteServiceURL,
		MaxPollingDuration:  time.Duration(r.MaxPollingDuration),
		LastOperation: binding.LastOperation{
			Type:        r.LastOpType,
			State:       binding.LastOperationState(r.LastOpState),
			Description: r.LastOpDescription,
			UpdatedAt:   r.LastOpUpdatedAt,
		},
	}, nil
}

type auditEventRecord struct {
	ID           string         `msgpack:"id"`
	Action       string         `msgpack:"action"`
	Resource     string         `msgpack:"resource"`
	ResourceGUID string         `msgpack:"resource_guid,omitempty"`
	ActorGUID    string         `msgpack:"actor_guid,omitempty"`
	ActorName    string         `msgpack:"actor_name,omitempty"`
	ActorHash    string         `msgpack:"actor_hash,omitempty"`
	Metadata     map[string]any `msgpack:"metadata,omitempty"`
	Outcome      string         `msgpack:"outcome,omitempty"`
	Severity     string         `msgpack:"severity,omitempty"`
	Reason       string         `msgpack:"reason,omitempty"`
	CreatedAt    time.Time      `msgpack:"created_at"`
}

func encodeAuditEvent(evt *audit.Event) ([]byte, error) {
	data, err := msgpack.Marshal(&auditEventRecord{
		ID:           evt.ID.String(),
		Action:       evt.Action,
		Resource:     evt.Resource,
		ResourceGUID: evt.ResourceGUID,
		ActorGUID:    evt.ActorGUID,
		ActorName:    evt.ActorName,
		ActorHash:    evt.ActorHash,
		Metadata:     evt.Metadata,
		Outcome:      evt.Outcome,
		Severity:     evt.Severity,
		Reason:       evt.Reason,
		CreatedAt:    evt.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("ccng/redis: encode audit event: %w", err)
	}
	return data, nil
}

func decodeAuditEvent(data []byte) (*audit.Event, error) {
	var r auditEventRecord
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("ccng/redis: decode audit event: %w", err)
	}

	parsedID, err := id.ParseAuditID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("ccng/redis: parse audit id %q: %w", r.ID, err)
	}

	return &audit.Event{
		ID:           parsedID,
		Action:       r.Action,
		Resource:     r.Resource,
		ResourceGUID: r.ResourceGUID,
		ActorGUID:    r.ActorGUID,
		ActorName:    r.ActorName,
		ActorHash:    r.ActorHash,
		Metadata:     r.Metadata,
		Outcome:      r.Outcome,
		Severity:     r.Severity,
		Reason:       r.Reason,
		CreatedAt:    r.CreatedAt,
	}, nil
}

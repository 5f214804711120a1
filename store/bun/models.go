package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	ccng "github.com/braunsonm/cloud-controller-ng"
	"github.com/braunsonm/cloud-controller-ng/audit"
	"github.com/braunsonm/cloud-controller-ng/binding"
	"github.com/braunsonm/cloud-controller-ng/id"
	"github.com/braunsonm/cloud-controller-ng/operation"
)

// ── Operation model ───────────────────────────────────────────────

type operationModel struct {
	bun.BaseModel `bun:"table:ccng_operations"`

	ID              string     `bun:"id,pk"`
	Kind            string     `bun:"kind,notnull"`
	ResourceGUID    string     `bun:"resource_guid,notnull"`
	Parameters      []byte     `bun:"parameters,type:bytea"`
	ActorGUID       string     `bun:"actor_guid"`
	ActorName       string     `bun:"actor_name"`
	AuditHash       string     `bun:"audit_hash"`
	State           string     `bun:"state,notnull,default:'pending'"`
	FirstAttempt    bool       `bun:"first_attempt,notnull,default:true"`
	BrokerOperation string     `bun:"broker_operation"`
	PollingInterval int64      `bun:"polling_interval,notnull,default:0"`
	MaxDuration     int64      `bun:"max_duration,notnull,default:0"`
	Attempts        int        `bun:"attempts,notnull,default:0"`
	LastError       string     `bun:"last_error"`
	WorkerID        string     `bun:"worker_id"`
	RunAt           time.Time  `bun:"run_at,notnull,default:current_timestamp"`
	FirstStartedAt  *time.Time `bun:"first_started_at"`
	StartedAt       *time.Time `bun:"started_at"`
	CompletedAt     *time.Time `bun:"completed_at"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toOperationModel(op *operation.Operation) *operationModel {
	m := &operationModel{
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
		m.WorkerID = op.WorkerID.String()
	}
	return m
}

func fromOperationModel(m *operationModel) (*operation.Operation, error) {
	parsedID, err := id.ParseOperationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("ccng/bun: parse operation id %q: %w", m.ID, err)
	}

	op := &operation.Operation{
		Entity: ccng.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		Kind:         operation.Kind(m.Kind),
		ResourceGUID: m.ResourceGUID,
		Parameters:   m.Parameters,
		AuditInfo: operation.AuditInfo{
			UserGUID: m.ActorGUID,
			UserName: m.ActorName,
		},
		AuditHash:       m.AuditHash,
		State:           operation.State(m.State),
		FirstAttempt:    m.FirstAttempt,
		BrokerOperation: m.BrokerOperation,
		PollingInterval: time.Duration(m.PollingInterval),
		MaxDuration:     time.Duration(m.MaxDuration),
		Attempts:        m.Attempts,
		LastError:       m.LastError,
		RunAt:           m.RunAt,
		FirstStartedAt:  m.FirstStartedAt,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
	}

	if m.WorkerID != "" {
		parsedWorker, wErr := id.ParseWorkerID(m.WorkerID)
		if wErr == nil {
			op.WorkerID = parsedWorker
		}
	}

	return op, nil
}

// ── Binding model ─────────────────────────────────────────────────

type bindingModel struct {
	bun.BaseModel `bun:"table:ccng_bindings"`

	GUID                string     `bun:"guid,pk"`
	Kind                string     `bun:"kind,notnull"`
	ServiceInstanceGUID string     `bun:"service_instance_guid,notnull"`
	ServiceID           string     `bun:"service_id"`
	PlanID              string     `bun:"plan_id"`
	Name                string     `bun:"name"`
	AppGUID             string     `bun:"app_guid"`
	RouteURL            string     `bun:"route_url"`
	Retrievable         bool       `bun:"retrievable,notnull,default:false"`
	Credentials         []byte     `bun:"credentials,type:bytea"`
	RouteServiceURL     string     `bun:"route_service_url"`
	MaxPollingDuration  int64      `bun:"max_polling_duration,notnull,default:0"`
	LastOpType          string     `bun:"last_operation_type"`
	LastOpState         string     `bun:"last_operation_state,notnull,default:'initial'"`
	LastOpDescription   string     `bun:"last_operation_description"`
	LastOpUpdatedAt     *time.Time `bun:"last_operation_updated_at"`
	CreatedAt           time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt           time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toBindingModel(b *binding.Binding) *bindingModel {
	m := &bindingModel{
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
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
	if !b.LastOperation.UpdatedAt.IsZero() {
		t := b.LastOperation.UpdatedAt
		m.LastOpUpdatedAt = &t
	}
	return m
}

func fromBindingModel(m *bindingModel) *binding.Binding {
	b := &binding.Binding{
		Entity: ccng.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		GUID:                m.GUID,
		Kind:                operation.Kind(m.Kind),
		ServiceInstanceGUID: m.ServiceInstanceGUID,
		ServiceID:           m.ServiceID,
		PlanID:              m.PlanID,
		Name:                m.Name,
		AppGUID:             m.AppGUID,
		RouteURL:            m.RouteURL,
		Retrievable:         m.Retrievable,
		Credentials:         m.Credentials,
		RouteServiceURL:     m.RouteServiceURL,
		MaxPollingDuration:  time.Duration(m.MaxPollingDuration),
		LastOperation: binding.LastOperation{
			Type:        m.LastOpType,
			State:       binding.LastOperationState(m.LastOpState),
			Description: m.LastOpDescription,
		},
	}
	if m.LastOpUpdatedAt != nil {
		b.LastOperation.UpdatedAt = *m.LastOpUpdatedAt
	}
	return b
}

// ── Audit event model ─────────────────────────────────────────────

type auditEventModel struct {
	bun.BaseModel `bun:"table:ccng_audit_events"`

	ID           string          `bun:"id,pk"`
	Action       string          `bun:"action,notnull"`
	Resource     string          `bun:"resource,notnull"`
	ResourceGUID string          `bun:"resource_guid"`
	ActorGUID    string          `bun:"actor_guid"`
	ActorName    string          `bun:"actor_name"`
	ActorHash    string          `bun:"actor_hash"`
	Metadata     json.RawMessage `bun:"metadata,type:jsonb"`
	Outcome      string          `bun:"outcome"`
	Severity     string          `bun:"severity"`
	Reason       string          `bun:"reason"`
	CreatedAt    time.Time       `bun:"created_at,notnull,default:current_timestamp"`
}

func toAuditEventModel(evt *audit.Event) (*auditEventModel, error) {
	m := &auditEventModel{
		ID:           evt.ID.String(),
		Action:       evt.Action,
		Resource:     evt.Resource,
		ResourceGUID: evt.ResourceGUID,
		ActorGUID:    evt.ActorGUID,
		ActorName:    evt.ActorName,
		ActorHash:    evt.ActorHash,
		Outcome:      evt.Outcome,
		Severity:     evt.Severity,
		Reason:       evt.Reason,
		CreatedAt:    evt.CreatedAt,
	}
	if len(evt.Metadata) > 0 {
		data, err := json.Marshal(evt.Metadata)
		if err != nil {
			return nil, fmt.Errorf("ccng/bun: marshal audit metadata: %w", err)
		}
		m.Metadata = data
	}
	return m, nil
}

func fromAuditEventModel(m *auditEventModel) (*audit.Event, error) {
	parsedID, err := id.ParseAuditID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("ccng/bun: parse audit id %q: %w", m.ID, err)
	}

	evt := &audit.Event{
		ID:           parsedID,
		Action:       m.Action,
		Resource:     m.Resource,
		ResourceGUID: m.ResourceGUID,
		ActorGUID:    m.ActorGUID,
		ActorName:    m.ActorName,
		ActorHash:    m.ActorHash,
		Outcome:      m.Outcome,
		Severity:     m.Severity,
		Reason:       m.Reason,
		CreatedAt:    m.CreatedAt,
	}
	if len(m.Metadata) > 0 {
		if unmarshalErr := json.Unmarshal(m.Metadata, &evt.Metadata); unmarshalErr != nil {
			return nil, fmt.Errorf("ccng/bun: unmarshal audit metadata: %w", unmarshalErr)
		}
	}
	return evt, nil
}

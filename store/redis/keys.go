package redis

// Redis key naming conventions. All keys are prefixed with "ccng:" to
// avoid collisions with other tenants of the same Redis.

const keyPrefix = "ccng:"

// ── Operation keys ──

// operationKey returns the key for an operation record: ccng:operation:{id}
func operationKey(id string) string { return keyPrefix + "operation:" + id }

// operationIDsKey is the Set tracking all operation IDs for enumeration.
const operationIDsKey = keyPrefix + "operation_ids"

// dueKey is the Sorted Set of pending operation IDs scored by RunAt
// (unix nanoseconds). Claiming pops from here.
const dueKey = keyPrefix + "operations:due"

// ── Binding keys ──

// bindingKey returns the key for a binding record: ccng:binding:{guid}
func bindingKey(guid string) string { return keyPrefix + "binding:" + guid }

// bindingGUIDsKey is the Set tracking all binding GUIDs for enumeration.
const bindingGUIDsKey = keyPrefix + "binding_guids"

// ── Audit keys ──

// auditEventKey returns the key for an audit event record: ccng:audit_event:{id}
func auditEventKey(id string) string { return keyPrefix + "audit_event:" + id }

// auditLogKey is the List of all audit event IDs in append order.
const auditLogKey = keyPrefix + "audit_log"

// auditResourceLogKey returns the List of audit event IDs for one
// resource: ccng:audit_log:{resourceGUID}
func auditResourceLogKey(resourceGUID string) string {
	return keyPrefix + "audit_log:" + resourceGUID
}

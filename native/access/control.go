package access

import (
	"time"

	"shade/core/errors"
	"shade/core/events"
	"shade/core/state"
	"shade/core/types"
)

type controlState interface {
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVHas(key []byte) (bool, error)
	KVDelete(key []byte) error
}

// Control owns the admin identity and the per-user role grants. The admin is
// written exactly once at initialization; roles are additive capability tags
// independent of the admin identity.
type Control struct {
	state   controlState
	emitter events.Emitter
	nowFn   func() uint64
}

// NewControl creates an access-control engine with a no-op emitter.
func NewControl(st controlState) *Control {
	return &Control{
		state:   st,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (c *Control) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (c *Control) SetNowFunc(now func() uint64) {
	if now == nil {
		c.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	c.nowFn = now
}

// Initialize stores the deployment admin and contract metadata. It fails once
// an admin record exists; admin transfer is not supported.
func (c *Control) Initialize(admin [20]byte) error {
	exists, err := c.state.KVHas(state.AdminKey())
	if err != nil {
		return err
	}
	if exists {
		return errors.ErrAlreadyInitialized
	}
	now := c.nowFn()
	if err := c.state.KVPut(state.AdminKey(), admin); err != nil {
		return err
	}
	info := &types.ContractInfo{Admin: admin, CreatedAt: now}
	if err := c.state.KVPut(state.ContractInfoKey(), info); err != nil {
		return err
	}
	c.emitter.Emit(events.Initialized{Admin: admin, Timestamp: now})
	return nil
}

// Admin returns the stored admin identity.
func (c *Control) Admin() ([20]byte, error) {
	var admin [20]byte
	exists, err := c.state.KVGet(state.AdminKey(), &admin)
	if err != nil {
		return admin, err
	}
	if !exists {
		return admin, errors.ErrNotInitialized
	}
	return admin, nil
}

// Info returns the deployment metadata recorded at initialization.
func (c *Control) Info() (*types.ContractInfo, error) {
	info := new(types.ContractInfo)
	exists, err := c.state.KVGet(state.ContractInfoKey(), info)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.ErrNotInitialized
	}
	return info, nil
}

// RequireAdmin fails unless caller is the stored admin. The caller identity
// has already been authenticated at the host boundary; this only decides
// whether that identity is the required principal.
func (c *Control) RequireAdmin(caller [20]byte) error {
	admin, err := c.Admin()
	if err != nil {
		return err
	}
	if caller != admin {
		return errors.ErrNotAuthorized
	}
	return nil
}

// GrantRole marks the (user, role) pair active. Granting an already-granted
// role succeeds and still emits the event: the event stream records intent.
func (c *Control) GrantRole(caller, user [20]byte, role types.Role) error {
	if err := c.RequireAdmin(caller); err != nil {
		return err
	}
	if err := c.state.KVPut(state.RoleKey(user[:], string(role)), true); err != nil {
		return err
	}
	c.emitter.Emit(events.RoleGranted{User: user, Role: role, Timestamp: c.nowFn()})
	return nil
}

// RevokeRole clears the (user, role) pair. Revoking an absent grant succeeds
// and still emits the event.
func (c *Control) RevokeRole(caller, user [20]byte, role types.Role) error {
	if err := c.RequireAdmin(caller); err != nil {
		return err
	}
	if err := c.state.KVDelete(state.RoleKey(user[:], string(role))); err != nil {
		return err
	}
	c.emitter.Emit(events.RoleRevoked{User: user, Role: role, Timestamp: c.nowFn()})
	return nil
}

// HasRole reports whether the (user, role) pair is active. Unknown pairs and
// read failures report false, matching the best-effort semantics required by
// callers.
func (c *Control) HasRole(user [20]byte, role types.Role) bool {
	var granted bool
	exists, err := c.state.KVGet(state.RoleKey(user[:], string(role)), &granted)
	if err != nil || !exists {
		return false
	}
	return granted
}

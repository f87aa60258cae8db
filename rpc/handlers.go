package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"shade/core/types"
	"shade/crypto"
)

// mutatingMethods lists every method that changes contract state. These
// require a signed envelope (and the bearer token when configured).
var mutatingMethods = map[string]bool{
	"shade_initialize":          true,
	"shade_grantRole":           true,
	"shade_revokeRole":          true,
	"shade_pause":               true,
	"shade_unpause":             true,
	"shade_addAcceptedToken":    true,
	"shade_removeAcceptedToken": true,
	"shade_registerMerchant":    true,
	"shade_verifyMerchant":      true,
	"shade_setMerchantKey":      true,
	"shade_createInvoice":       true,
	"shade_upgrade":             true,
}

// signedEnvelope is the wire form of an authenticated mutation. The signature
// is a recoverable secp256k1 signature over the exact payload bytes; the
// recovered identity is the caller handed to the contract. A missing or
// malformed signature never reaches contract logic.
type signedEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

type merchantJSON struct {
	ID           uint64 `json:"id"`
	Address      string `json:"address"`
	Active       bool   `json:"active"`
	Verified     bool   `json:"verified"`
	RegisteredAt uint64 `json:"registeredAt"`
}

type invoiceJSON struct {
	ID          uint64 `json:"id"`
	MerchantID  uint64 `json:"merchantId"`
	Amount      string `json:"amount"`
	Token       string `json:"token"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func merchantToJSON(m *types.Merchant) merchantJSON {
	return merchantJSON{
		ID:           m.ID,
		Address:      crypto.NewAddress(crypto.ShadePrefix, m.Address[:]).String(),
		Active:       m.Active,
		Verified:     m.Verified,
		RegisteredAt: m.RegisteredAt,
	}
}

func invoiceToJSON(inv *types.Invoice) invoiceJSON {
	amount := "0"
	if inv.Amount != nil {
		amount = inv.Amount.String()
	}
	return invoiceJSON{
		ID:          inv.ID,
		MerchantID:  inv.MerchantID,
		Amount:      amount,
		Token:       crypto.NewAddress(crypto.ShadePrefix, inv.Token[:]).String(),
		Description: inv.Description,
		Status:      inv.Status.String(),
	}
}

func invalidParams(msg string) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: msg}
}

func firstParam(params []json.RawMessage, out interface{}) *RPCError {
	if len(params) != 1 {
		return invalidParams("expected a single parameter object")
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return invalidParams(fmt.Sprintf("malformed parameters: %v", err))
	}
	return nil
}

// openEnvelope verifies the signed envelope and returns the recovered caller
// together with the payload bytes for per-method decoding.
func openEnvelope(params []json.RawMessage) ([20]byte, json.RawMessage, *RPCError) {
	var caller [20]byte
	var env signedEnvelope
	if rpcErr := firstParam(params, &env); rpcErr != nil {
		return caller, nil, rpcErr
	}
	if len(env.Payload) == 0 {
		return caller, nil, invalidParams("payload required")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(env.Signature), "0x"))
	if err != nil {
		return caller, nil, &RPCError{Code: codeUnauthorized, Message: "malformed signature"}
	}
	signer, err := crypto.RecoverAddress(env.Payload, sig)
	if err != nil {
		return caller, nil, &RPCError{Code: codeUnauthorized, Message: "signature verification failed"}
	}
	copy(caller[:], signer.Bytes())
	return caller, env.Payload, nil
}

func decodePayload(payload json.RawMessage, out interface{}) *RPCError {
	if err := json.Unmarshal(payload, out); err != nil {
		return invalidParams(fmt.Sprintf("malformed payload: %v", err))
	}
	return nil
}

func decodeBech32(value, field string) ([20]byte, *RPCError) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, invalidParams(fmt.Sprintf("%s: %v", field, err))
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func decodeHex32(value, field string) ([32]byte, *RPCError) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if err != nil || len(raw) != 32 {
		return out, invalidParams(fmt.Sprintf("%s must be 32 hex-encoded bytes", field))
	}
	copy(out[:], raw)
	return out, nil
}

func decodeAmount(value string) (*big.Int, *RPCError) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, invalidParams("amount must be a base-10 integer")
	}
	return amount, nil
}

func decodeRole(value string) (types.Role, *RPCError) {
	role := types.Role(strings.TrimSpace(value))
	if !role.Valid() {
		return "", invalidParams(fmt.Sprintf("unknown role %q", value))
	}
	return role, nil
}

// dispatch is the explicit operation table: method name → handler. No
// reflection; adding an operation means adding a case.
func (s *Server) dispatch(method string, params []json.RawMessage) (interface{}, *RPCError) {
	switch method {
	case "shade_initialize":
		return s.handleInitialize(params)
	case "shade_getAdmin":
		return s.handleGetAdmin()
	case "shade_getInfo":
		return s.handleGetInfo()
	case "shade_grantRole":
		return s.handleRoleChange(params, true)
	case "shade_revokeRole":
		return s.handleRoleChange(params, false)
	case "shade_hasRole":
		return s.handleHasRole(params)
	case "shade_pause":
		return s.handlePause(params, true)
	case "shade_unpause":
		return s.handlePause(params, false)
	case "shade_isPaused":
		return s.shade.IsPaused(), nil
	case "shade_addAcceptedToken":
		return s.handleTokenChange(params, true)
	case "shade_removeAcceptedToken":
		return s.handleTokenChange(params, false)
	case "shade_isAcceptedToken":
		return s.handleIsAcceptedToken(params)
	case "shade_getAcceptedTokens":
		return s.handleAcceptedTokens()
	case "shade_registerMerchant":
		return s.handleRegisterMerchant(params)
	case "shade_getMerchant":
		return s.handleGetMerchant(params)
	case "shade_getMerchants":
		return s.handleGetMerchants(params)
	case "shade_isMerchant":
		return s.handleIsMerchant(params)
	case "shade_verifyMerchant":
		return s.handleVerifyMerchant(params)
	case "shade_isMerchantVerified":
		return s.handleIsMerchantVerified(params)
	case "shade_setMerchantKey":
		return s.handleSetMerchantKey(params)
	case "shade_getMerchantKey":
		return s.handleGetMerchantKey(params)
	case "shade_createInvoice":
		return s.handleCreateInvoice(params)
	case "shade_getInvoice":
		return s.handleGetInvoice(params)
	case "shade_getInvoices":
		return s.handleGetInvoices(params)
	case "shade_upgrade":
		return s.handleUpgrade(params)
	case "shade_getEvents":
		return s.handleGetEvents(params)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", method)}
	}
}

func (s *Server) handleInitialize(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		Admin string `json:"admin"`
	}
	if rpcErr := firstParam(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	admin, rpcErr := decodeBech32(req.Admin, "admin")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.shade.Initialize(admin); err != nil {
		return nil, contractError(err)
	}
	return true, nil
}

func (s *Server) handleGetAdmin() (interface{}, *RPCError) {
	admin, err := s.shade.GetAdmin()
	if err != nil {
		return nil, contractError(err)
	}
	return crypto.NewAddress(crypto.ShadePrefix, admin[:]).String(), nil
}

func (s *Server) handleGetInfo() (interface{}, *RPCError) {
	info, err := s.shade.GetInfo()
	if err != nil {
		return nil, contractError(err)
	}
	return map[string]interface{}{
		"admin":     crypto.NewAddress(crypto.ShadePrefix, info.Admin[:]).String(),
		"createdAt": info.CreatedAt,
	}, nil
}

func (s *Server) handleRoleChange(params []json.RawMessage, grant bool) (interface{}, *RPCError) {
	caller, payload, rpcErr := openEnvelope(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var req struct {
		User string `json:"user"`
		Role string `json:"role"`
	}
	if rpcErr := decodePayload(payload, &req); rpcErr != nil {
		return nil, rpcErr
	}
	user, rpcErr := decodeBech32(req.User, "user")
	if rpcErr != nil {
		return nil, rpcErr
	}
	role, rpcErr := decodeRole(req.Role)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var err error
	if grant {
		err = s.shade.GrantRole(caller, user, role)
	} else {
		err = s.shade.RevokeRole(caller, user, role)
	}
	if err != nil {
		return nil, contractError(err)
	}
	return true, nil
}

func (s *Server) handleHasRole(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		User string `json:"user"`
		Role string `json:"role"`
	}
	if rpcErr := firstParam(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	user, rpcErr := decodeBech32(req.User, "user")
	if rpcErr != nil {
		return nil, rpcErr
	}
	role, rpcErr := decodeRole(req.Role)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.shade.HasRole(user, role), nil
}

func (s *Server) handlePause(params []json.RawMessage, pause bool) (interface{}, *RPCError) {
	caller, _, rpcErr := openEnvelope(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var err error
	if pause {
		err = s.shade.Pause(caller)
	} else {
		err = s.shade.Unpause(caller)
	}
	if err != nil {
		return nil, contractError(err)
	}
	return true, nil
}

func (s *Server) handleTokenChange(params []json.RawMessage, add bool) (interface{}, *RPCError) {
	caller, payload, rpcErr := openEnvelope(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var req struct {
		Token string `json:"token"`
	}
	if rpcErr := decodePayload(payload, &req); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := decodeBech32(req.Token, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var err error
	if add {
		err = s.shade.AddAcceptedToken(caller, token)
	} else {
		err = s.shade.RemoveAcceptedToken(caller, token)
	}
	if err != nil {
		return nil, contractError(err)
	}
	return true, nil
}

func (s *Server) handleIsAcceptedToken(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		Token string `json:"token"`
	}
	if rpcErr := firstParam(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := decodeBech32(req.Token, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.shade.IsAcceptedToken(token), nil
}

func (s *Server) handleAcceptedTokens() (interface{}, *RPCError) {
	accepted, err := s.shade.AcceptedTokens()
	if err != nil {
		return nil, contractError(err)
	}
	out := make([]string, 0, len(accepted))
	for _, token := range accepted {
		out = append(out, crypto.NewAddress(crypto.ShadePrefix, token[:]).String())
	}
	return out, nil
}

func (s *Server) handleRegisterMerchant(params []json.RawMessage) (interface{}, *RPCError) {
	caller, _, rpcErr := openEnvelope(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, err := s.shade.RegisterMerchant(caller)
	if err != nil {
		return nil, contractError(err)
	}
	return map[string]uint64{"id": id}, nil
}

func (s *Server) handleGetMerchant(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		ID uint64 `json:"id"`
	}
	if rpcErr := firstParam(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.shade.GetMerchant(req.ID)
	if err != nil {
		return nil, contractError(err)
	}
	return merchantToJSON(record), nil
}

func (s *Server) handleGetMerchants(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		IsActive   *bool `json:"isActive"`
		IsVerified *bool `json:"isVerified"`
	}
	if len(params) > 0 {
		if rpcErr := firstParam(params, &req); rpcErr != nil {
			return nil, rpcErr
		}
	}
	records, err := s.shade.GetMerchants(types.MerchantFilter{IsActive: req.IsActive, IsVerified: req.IsVerified})
	if err != nil {
		return nil, contractError(err)
	}
	out := make([]merchantJSON, 0, len(records))
	for i := range records {
		out = append(out, merchantToJSON(&records[i]))
	}
	return out, nil
}

func (s *Server) handleIsMerchant(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		Address string `json:"address"`
	}
	if rpcErr := firstParam(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeBech32(req.Address, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.shade.IsMerchant(addr), nil
}

func (s *Server) handleVerifyMerchant(params []json.RawMessage) (interface{}, *RPCError) {
	caller, payload, rpcErr := openEnvelope(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var req struct {
		ID     uint64 `json:"id"`
		Status bool   `json:"status"`
	}
	if rpcErr := decodePayload(payload, &req); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.shade.VerifyMerchant(caller, req.ID, req.Status); err != nil {
		return nil, contractError(err)
	}
	return true, nil
}

func (s *Server) handleIsMerchantVerified(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		ID uint64 `json:"id"`
	}
	if rpcErr := firstParam(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	verified, err := s.shade.IsMerchantVerified(req.ID)
	if err != nil {
		return nil, contractError(err)
	}
	return verified, nil
}

func (s *Server) handleSetMerchantKey(params []json.RawMessage) (interface{}, *RPCError) {
	caller, payload, rpcErr := openEnvelope(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var req struct {
		Key string `json:"key"`
	}
	if rpcErr := decodePayload(payload, &req); rpcErr != nil {
		return nil, rpcErr
	}
	key, rpcErr := decodeHex32(req.Key, "key")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.shade.SetMerchantKey(caller, key); err != nil {
		return nil, contractError(err)
	}
	return true, nil
}

func (s *Server) handleGetMerchantKey(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		Address string `json:"address"`
	}
	if rpcErr := firstParam(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := decodeBech32(req.Address, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	key, err := s.shade.GetMerchantKey(addr)
	if err != nil {
		return nil, contractError(err)
	}
	return hex.EncodeToString(key[:]), nil
}

func (s *Server) handleCreateInvoice(params []json.RawMessage) (interface{}, *RPCError) {
	caller, payload, rpcErr := openEnvelope(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var req struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Token       string `json:"token"`
	}
	if rpcErr := decodePayload(payload, &req); rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := decodeAmount(req.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := decodeBech32(req.Token, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, err := s.shade.CreateInvoice(caller, req.Description, amount, token)
	if err != nil {
		return nil, contractError(err)
	}
	return map[string]uint64{"id": id}, nil
}

func (s *Server) handleGetInvoice(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		ID uint64 `json:"id"`
	}
	if rpcErr := firstParam(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	record, err := s.shade.GetInvoice(req.ID)
	if err != nil {
		return nil, contractError(err)
	}
	return invoiceToJSON(record), nil
}

func (s *Server) handleGetInvoices(params []json.RawMessage) (interface{}, *RPCError) {
	var req struct {
		MerchantID *uint64 `json:"merchantId"`
		Status     *string `json:"status"`
	}
	if len(params) > 0 {
		if rpcErr := firstParam(params, &req); rpcErr != nil {
			return nil, rpcErr
		}
	}
	filter := types.InvoiceFilter{MerchantID: req.MerchantID}
	if req.Status != nil {
		var status types.InvoiceStatus
		switch strings.ToLower(strings.TrimSpace(*req.Status)) {
		case "pending":
			status = types.InvoiceStatusPending
		case "paid":
			status = types.InvoiceStatusPaid
		case "cancelled":
			status = types.InvoiceStatusCancelled
		default:
			return nil, invalidParams(fmt.Sprintf("unknown invoice status %q", *req.Status))
		}
		filter.Status = &status
	}
	records, err := s.shade.GetInvoices(filter)
	if err != nil {
		return nil, contractError(err)
	}
	out := make([]invoiceJSON, 0, len(records))
	for i := range records {
		out = append(out, invoiceToJSON(&records[i]))
	}
	return out, nil
}

func (s *Server) handleUpgrade(params []json.RawMessage) (interface{}, *RPCError) {
	caller, payload, rpcErr := openEnvelope(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var req struct {
		NewCodeHash string `json:"newCodeHash"`
	}
	if rpcErr := decodePayload(payload, &req); rpcErr != nil {
		return nil, rpcErr
	}
	hash, rpcErr := decodeHex32(req.NewCodeHash, "newCodeHash")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.shade.Upgrade(caller, hash); err != nil {
		return nil, contractError(err)
	}
	return true, nil
}

func (s *Server) handleGetEvents(params []json.RawMessage) (interface{}, *RPCError) {
	if s.journal == nil {
		return nil, &RPCError{Code: codeServerError, Message: "event journal not configured"}
	}
	var req struct {
		After uint64 `json:"after"`
		Limit int    `json:"limit"`
	}
	if len(params) > 0 {
		if rpcErr := firstParam(params, &req); rpcErr != nil {
			return nil, rpcErr
		}
	}
	evts, last, err := s.journal.List(req.After, req.Limit)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	return map[string]interface{}{"events": evts, "lastSeq": last}, nil
}

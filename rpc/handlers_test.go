package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"shade/contract"
	cerrors "shade/core/errors"
	"shade/core/events"
	"shade/core/state"
	"shade/crypto"
	"shade/storage"
)

// staticSymbols answers symbol reads from a fixed table.
type staticSymbols map[[20]byte]string

func (s staticSymbols) Symbol(token [20]byte) (string, error) {
	symbol, ok := s[token]
	if !ok {
		return "", fmt.Errorf("no contract at address")
	}
	return symbol, nil
}

type testEnv struct {
	server   *httptest.Server
	adminKey *crypto.PrivateKey
	token    [20]byte
}

func newKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func keyAddr(key *crypto.PrivateKey) [20]byte {
	var out [20]byte
	copy(out[:], key.PubKey().Address().Bytes())
	return out
}

func newTestEnv(t *testing.T, authToken string, withJournal bool) *testEnv {
	t.Helper()
	adminKey := newKey(t)
	var token [20]byte
	token[0] = 0x20

	shade := contract.New(state.NewManager(storage.NewMemDB()), staticSymbols{token: "USDX"}, nil)
	var journal *events.Journal
	if withJournal {
		var err error
		journal, err = events.OpenJournal(filepath.Join(t.TempDir(), "events.db"), nil)
		if err != nil {
			t.Fatalf("open journal: %v", err)
		}
		t.Cleanup(func() { _ = journal.Close() })
		shade.SetEmitter(journal)
	}
	if err := shade.Initialize(keyAddr(adminKey)); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	server := httptest.NewServer(NewServer(shade, journal, authToken, nil).Router())
	t.Cleanup(server.Close)
	return &testEnv{server: server, adminKey: adminKey, token: token}
}

func signedParam(t *testing.T, key *crypto.PrivateKey, payload interface{}) map[string]interface{} {
	t.Helper()
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	sig, err := key.Sign(payloadBytes)
	if err != nil {
		t.Fatalf("sign payload: %v", err)
	}
	return map[string]interface{}{
		"payload":   json.RawMessage(payloadBytes),
		"signature": hex.EncodeToString(sig),
	}
}

type rpcResult struct {
	status int
	body   RPCResponse
}

func (e *testEnv) call(t *testing.T, authToken, method string, params ...interface{}) rpcResult {
	t.Helper()
	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.server.URL, bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var out RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResult{status: resp.StatusCode, body: out}
}

func contractCode(t *testing.T, rpcErr *RPCError) uint32 {
	t.Helper()
	if rpcErr == nil {
		t.Fatalf("expected an error response")
	}
	if rpcErr.Code != codeContractError {
		t.Fatalf("expected contract error code %d, got %d (%s)", codeContractError, rpcErr.Code, rpcErr.Message)
	}
	data, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %T", rpcErr.Data)
	}
	code, ok := data["contractError"].(float64)
	if !ok {
		t.Fatalf("expected numeric contractError, got %v", data)
	}
	return uint32(code)
}

func bech32Addr(raw [20]byte) string {
	return crypto.NewAddress(crypto.ShadePrefix, raw[:]).String()
}

func TestParseError(t *testing.T) {
	env := newTestEnv(t, "", false)
	resp, err := http.Post(env.server.URL, "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var out RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error == nil || out.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", out.Error)
	}
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t, "", false)
	result := env.call(t, "", "shade_noSuchMethod")
	if result.status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", result.status)
	}
	if result.body.Error == nil || result.body.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", result.body.Error)
	}
}

func TestGetAdmin(t *testing.T) {
	env := newTestEnv(t, "", false)
	result := env.call(t, "", "shade_getAdmin")
	if result.body.Error != nil {
		t.Fatalf("unexpected error %+v", result.body.Error)
	}
	if result.body.Result != bech32Addr(keyAddr(env.adminKey)) {
		t.Fatalf("unexpected admin %v", result.body.Result)
	}
}

func TestMerchantAndInvoiceFlow(t *testing.T) {
	env := newTestEnv(t, "", false)
	merchantKey := newKey(t)

	result := env.call(t, "", "shade_registerMerchant",
		signedParam(t, merchantKey, map[string]string{"op": "register"}))
	if result.body.Error != nil {
		t.Fatalf("register: %+v", result.body.Error)
	}
	ids, ok := result.body.Result.(map[string]interface{})
	if !ok || ids["id"].(float64) != 1 {
		t.Fatalf("expected merchant id 1, got %v", result.body.Result)
	}

	result = env.call(t, "", "shade_createInvoice",
		signedParam(t, merchantKey, map[string]string{
			"description": "consulting",
			"amount":      "1500",
			"token":       bech32Addr(env.token),
		}))
	if result.body.Error != nil {
		t.Fatalf("create invoice: %+v", result.body.Error)
	}

	result = env.call(t, "", "shade_getInvoice", map[string]uint64{"id": 1})
	if result.body.Error != nil {
		t.Fatalf("get invoice: %+v", result.body.Error)
	}
	record, ok := result.body.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result %v", result.body.Result)
	}
	if record["amount"] != "1500" || record["status"] != "pending" || record["merchantId"].(float64) != 1 {
		t.Fatalf("unexpected invoice %v", record)
	}

	result = env.call(t, "", "shade_isMerchant",
		map[string]string{"address": bech32Addr(keyAddr(merchantKey))})
	if result.body.Result != true {
		t.Fatalf("expected isMerchant true, got %v", result.body.Result)
	}
}

func TestContractErrorCarriesStableCode(t *testing.T) {
	env := newTestEnv(t, "", false)
	merchantKey := newKey(t)

	// Creating an invoice without registering first fails with MerchantNotFound.
	result := env.call(t, "", "shade_createInvoice",
		signedParam(t, merchantKey, map[string]string{
			"description": "x",
			"amount":      "1",
			"token":       bech32Addr(env.token),
		}))
	if got := contractCode(t, result.body.Error); got != uint32(cerrors.CodeMerchantNotFound) {
		t.Fatalf("expected code %d, got %d", cerrors.CodeMerchantNotFound, got)
	}

	// A non-admin mutating the allow-list fails with NotAuthorized.
	result = env.call(t, "", "shade_addAcceptedToken",
		signedParam(t, merchantKey, map[string]string{"token": bech32Addr(env.token)}))
	if got := contractCode(t, result.body.Error); got != uint32(cerrors.CodeNotAuthorized) {
		t.Fatalf("expected code %d, got %d", cerrors.CodeNotAuthorized, got)
	}
}

func TestAdminTokenManagement(t *testing.T) {
	env := newTestEnv(t, "", false)
	tokenStr := bech32Addr(env.token)

	result := env.call(t, "", "shade_addAcceptedToken",
		signedParam(t, env.adminKey, map[string]string{"token": tokenStr}))
	if result.body.Error != nil {
		t.Fatalf("add token: %+v", result.body.Error)
	}
	result = env.call(t, "", "shade_isAcceptedToken", map[string]string{"token": tokenStr})
	if result.body.Result != true {
		t.Fatalf("expected accepted, got %v", result.body.Result)
	}
	result = env.call(t, "", "shade_getAcceptedTokens")
	list, ok := result.body.Result.([]interface{})
	if !ok || len(list) != 1 || list[0] != tokenStr {
		t.Fatalf("unexpected allow-list %v", result.body.Result)
	}
}

func TestMalformedSignatureRejected(t *testing.T) {
	env := newTestEnv(t, "", false)
	result := env.call(t, "", "shade_registerMerchant", map[string]interface{}{
		"payload":   json.RawMessage(`{"op":"register"}`),
		"signature": "zz-not-hex",
	})
	if result.body.Error == nil || result.body.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", result.body.Error)
	}
}

func TestBearerTokenGatesMutations(t *testing.T) {
	env := newTestEnv(t, "sekrit", false)
	merchantKey := newKey(t)
	param := signedParam(t, merchantKey, map[string]string{"op": "register"})

	result := env.call(t, "", "shade_registerMerchant", param)
	if result.status != http.StatusUnauthorized || result.body.Error == nil || result.body.Error.Code != codeUnauthorized {
		t.Fatalf("expected 401 without token, got %d %+v", result.status, result.body.Error)
	}
	result = env.call(t, "wrong", "shade_registerMerchant", param)
	if result.status != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", result.status)
	}

	// Reads stay open.
	result = env.call(t, "", "shade_isPaused")
	if result.body.Error != nil {
		t.Fatalf("reads must not require the token: %+v", result.body.Error)
	}

	result = env.call(t, "sekrit", "shade_registerMerchant", param)
	if result.body.Error != nil {
		t.Fatalf("register with token: %+v", result.body.Error)
	}
}

func TestInvalidRoleRejected(t *testing.T) {
	env := newTestEnv(t, "", false)
	result := env.call(t, "", "shade_grantRole",
		signedParam(t, env.adminKey, map[string]string{
			"user": bech32Addr(keyAddr(env.adminKey)),
			"role": "ROLE_WIZARD",
		}))
	if result.body.Error == nil || result.body.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", result.body.Error)
	}
}

func TestRoleGrantAndQuery(t *testing.T) {
	env := newTestEnv(t, "", false)
	userKey := newKey(t)
	user := bech32Addr(keyAddr(userKey))

	result := env.call(t, "", "shade_grantRole",
		signedParam(t, env.adminKey, map[string]string{"user": user, "role": "ROLE_OPERATOR"}))
	if result.body.Error != nil {
		t.Fatalf("grant: %+v", result.body.Error)
	}
	result = env.call(t, "", "shade_hasRole", map[string]string{"user": user, "role": "ROLE_OPERATOR"})
	if result.body.Result != true {
		t.Fatalf("expected hasRole true, got %v", result.body.Result)
	}
}

func TestGetEvents(t *testing.T) {
	env := newTestEnv(t, "", true)
	merchantKey := newKey(t)
	result := env.call(t, "", "shade_registerMerchant",
		signedParam(t, merchantKey, map[string]string{"op": "register"}))
	if result.body.Error != nil {
		t.Fatalf("register: %+v", result.body.Error)
	}

	result = env.call(t, "", "shade_getEvents", map[string]interface{}{"after": 0, "limit": 10})
	if result.body.Error != nil {
		t.Fatalf("get events: %+v", result.body.Error)
	}
	page, ok := result.body.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result %v", result.body.Result)
	}
	evts, ok := page["events"].([]interface{})
	if !ok || len(evts) == 0 {
		t.Fatalf("expected journaled events, got %v", page)
	}
	last, ok := evts[len(evts)-1].(map[string]interface{})
	if !ok || last["type"] != events.TypeMerchantRegistered {
		t.Fatalf("expected a merchant-registered event, got %v", evts)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "", false)
	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"shade/crypto"
)

const defaultRPC = "http://127.0.0.1:8645"

func usage() {
	fmt.Fprintf(os.Stderr, `shade-cli — JSON-RPC client for the shade invoicing core

Usage:
  shade-cli [flags] <command> [args]

Commands:
  gen-key <file>                         generate a key file and print its address
  get-admin                              print the contract admin
  is-paused                              print the pause flag
  get-merchant <id>                      print a merchant record
  get-invoice <id>                       print an invoice record
  accepted-tokens                        print the settlement-token allow-list
  register-merchant                      register the key's address as a merchant
  create-invoice <desc> <amount> <token> issue an invoice from the key's merchant
  set-merchant-key <hex32>               store the merchant signing key
  add-token <token>                      allow-list a settlement token (admin)
  remove-token <token>                   remove a settlement token (admin)
  pause | unpause                        trip / clear the circuit breaker (admin)
  grant-role <user> <role>               grant a role (admin)
  revoke-role <user> <role>              revoke a role (admin)

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	rpcURL := flag.String("rpc", defaultRPC, "JSON-RPC endpoint")
	keyFile := flag.String("key", "", "hex-encoded private key file for signed commands")
	authToken := flag.String("token", os.Getenv("SHADE_RPC_TOKEN"), "bearer token for mutating commands")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cli := &client{url: *rpcURL, authToken: *authToken}

	var err error
	switch args[0] {
	case "gen-key":
		err = genKey(args[1:])
	case "get-admin":
		err = cli.call("shade_getAdmin", nil)
	case "is-paused":
		err = cli.call("shade_isPaused", nil)
	case "get-merchant":
		err = cli.callWithID("shade_getMerchant", args[1:])
	case "get-invoice":
		err = cli.callWithID("shade_getInvoice", args[1:])
	case "accepted-tokens":
		err = cli.call("shade_getAcceptedTokens", nil)
	case "register-merchant":
		err = cli.signed(*keyFile, "shade_registerMerchant", map[string]string{"op": "register"})
	case "create-invoice":
		if len(args) != 4 {
			err = fmt.Errorf("usage: create-invoice <description> <amount> <token>")
		} else {
			err = cli.signed(*keyFile, "shade_createInvoice", map[string]string{
				"description": args[1], "amount": args[2], "token": args[3],
			})
		}
	case "set-merchant-key":
		if len(args) != 2 {
			err = fmt.Errorf("usage: set-merchant-key <hex32>")
		} else {
			err = cli.signed(*keyFile, "shade_setMerchantKey", map[string]string{"key": args[1]})
		}
	case "add-token":
		if len(args) != 2 {
			err = fmt.Errorf("usage: add-token <token>")
		} else {
			err = cli.signed(*keyFile, "shade_addAcceptedToken", map[string]string{"token": args[1]})
		}
	case "remove-token":
		if len(args) != 2 {
			err = fmt.Errorf("usage: remove-token <token>")
		} else {
			err = cli.signed(*keyFile, "shade_removeAcceptedToken", map[string]string{"token": args[1]})
		}
	case "pause":
		err = cli.signed(*keyFile, "shade_pause", map[string]string{"op": "pause"})
	case "unpause":
		err = cli.signed(*keyFile, "shade_unpause", map[string]string{"op": "unpause"})
	case "grant-role":
		if len(args) != 3 {
			err = fmt.Errorf("usage: grant-role <user> <role>")
		} else {
			err = cli.signed(*keyFile, "shade_grantRole", map[string]string{"user": args[1], "role": args[2]})
		}
	case "revoke-role":
		if len(args) != 3 {
			err = fmt.Errorf("usage: revoke-role <user> <role>")
		} else {
			err = cli.signed(*keyFile, "shade_revokeRole", map[string]string{"user": args[1], "role": args[2]})
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func genKey(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: gen-key <file>")
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	encoded := hex.EncodeToString(key.Bytes())
	if err := os.WriteFile(args[0], []byte(encoded+"\n"), 0o600); err != nil {
		return err
	}
	fmt.Println(key.PubKey().Address().String())
	return nil
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("signed commands need -key <file>")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("key file must be hex encoded: %w", err)
	}
	return crypto.PrivateKeyFromBytes(decoded)
}

type client struct {
	url       string
	authToken string
}

func (c *client) callWithID(method string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <id>", method)
	}
	var id uint64
	if _, err := fmt.Sscan(args[0], &id); err != nil {
		return fmt.Errorf("invalid id %q", args[0])
	}
	return c.call(method, map[string]uint64{"id": id})
}

func (c *client) signed(keyFile, method string, payload interface{}) error {
	key, err := loadKey(keyFile)
	if err != nil {
		return err
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	sig, err := key.Sign(payloadBytes)
	if err != nil {
		return err
	}
	return c.call(method, map[string]interface{}{
		"payload":   json.RawMessage(payloadBytes),
		"signature": hex.EncodeToString(sig),
	})
}

func (c *client) call(method string, param interface{}) error {
	params := []interface{}{}
	if param != nil {
		params = append(params, param)
	}
	reqBody, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

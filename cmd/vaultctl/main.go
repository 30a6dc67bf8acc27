package main

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Louis-MaD/FamilyVault/internal/auth"
	cr "github.com/Louis-MaD/FamilyVault/internal/crypto"
	"github.com/Louis-MaD/FamilyVault/internal/sharing"
	"github.com/Louis-MaD/FamilyVault/internal/vault"
)

// vaultctl is the client side of the protocol: all key derivation,
// encryption and grant sealing happens here. The server only ever receives
// ciphertext.

const keyWrapAAD = "private-key-wrap"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "signup":
		fs := flag.NewFlagSet("signup", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		email := fs.String("email", "", "account email")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdSignup(*server, *email))

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		email := fs.String("email", "", "account email")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdLogin(*server, *email))

	case "keys":
		fs := flag.NewFlagSet("keys", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdPublishKeys(*server))

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		title := fs.String("title", "", "item title")
		site := fs.String("site", "", "site URL")
		user := fs.String("user", "", "username field")
		pass := fs.String("pass", "", "password field, or gen:N")
		family := fs.Bool("family", false, "expose metadata to the family and allow requests")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdAdd(*server, *title, *site, *user, *pass, *family))

	case "get":
		fs := flag.NewFlagSet("get", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		id := fs.String("id", "", "item id")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdGet(*server, *id))

	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		shared := fs.Bool("shared", false, "list the family's requestable items instead of your own")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdList(*server, *shared))

	case "request":
		fs := flag.NewFlagSet("request", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		item := fs.String("item", "", "item id to request access to")
		reason := fs.String("reason", "", "optional note to the owner")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdRequest(*server, *item, *reason))

	case "requests":
		fs := flag.NewFlagSet("requests", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		outgoing := fs.Bool("outgoing", false, "show requests you made instead of requests to you")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdRequests(*server, *outgoing))

	case "approve":
		fs := flag.NewFlagSet("approve", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		id := fs.String("id", "", "request id")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdApprove(*server, *id))

	case "deny":
		fs := flag.NewFlagSet("deny", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		id := fs.String("id", "", "request id")
		note := fs.String("note", "", "optional note")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdDecide(*server, *id, "deny", *note))

	case "cancel":
		fs := flag.NewFlagSet("cancel", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		id := fs.String("id", "", "request id")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdDecide(*server, *id, "cancel", ""))

	case "grants":
		fs := flag.NewFlagSet("grants", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdGrants(*server))

	case "revoke":
		fs := flag.NewFlagSet("revoke", flag.ExitOnError)
		server := fs.String("server", "http://localhost:8080", "vaultd base URL")
		id := fs.String("id", "", "grant id")
		_ = fs.Parse(os.Args[2:])
		dieIf(cmdRevoke(*server, *id))

	default:
		usage()
	}
}

func usage() {
	fmt.Print(`vaultctl commands:

  signup   --email you@example.com
  login    --email you@example.com          (prints a token; export VAULT_TOKEN)
  keys                                      (generate and publish your sharing key pair)
  add      --title Router --site https://r --user admin --pass gen:20 [--family]
  get      --id <ITEM_ID>
  list     [--shared]
  request  --item <ITEM_ID> [--reason "why"]
  requests [--outgoing]
  approve  --id <REQUEST_ID>
  deny     --id <REQUEST_ID> [--note "why not"]
  cancel   --id <REQUEST_ID>
  grants                                    (list active grants and decrypt them)
  revoke   --id <GRANT_ID>

All commands but signup/login need VAULT_TOKEN in the environment.
`)
}

// ---- commands ----

func cmdSignup(server, email string) error {
	if email == "" {
		return fmt.Errorf("--email required")
	}
	pw, err := promptSecret("Password: ")
	if err != nil {
		return err
	}
	defer cr.Zero(pw)

	c := newClient(server)
	var resp struct {
		UserID     string `json:"user_id"`
		Status     string `json:"status"`
		TOTPSecret string `json:"totp_secret"`
		TOTPUri    string `json:"totp_uri"`
		Note       string `json:"note"`
	}
	err = c.post("/api/signup", map[string]string{"email": email, "password": string(pw)}, &resp)
	if err != nil {
		return err
	}
	fmt.Println("user id:    ", resp.UserID)
	fmt.Println("status:     ", resp.Status)
	fmt.Println("totp secret:", resp.TOTPSecret)
	fmt.Println("totp uri:   ", resp.TOTPUri)
	fmt.Println(resp.Note)
	return nil
}

func cmdLogin(server, email string) error {
	if email == "" {
		return fmt.Errorf("--email required")
	}
	pw, err := promptSecret("Password: ")
	if err != nil {
		return err
	}
	defer cr.Zero(pw)

	c := newClient(server)
	var ch struct {
		ChallengeID string `json:"challenge_id"`
	}
	if err := c.post("/api/login", map[string]string{"email": email, "password": string(pw)}, &ch); err != nil {
		return err
	}
	code, err := promptLine("Authenticator code: ")
	if err != nil {
		return err
	}
	var lr struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.post("/api/login/verify", map[string]string{"challenge_id": ch.ChallengeID, "code": code}, &lr); err != nil {
		return err
	}
	fmt.Println("token (valid until", lr.ExpiresAt.Format(time.RFC3339)+"):")
	fmt.Println(lr.Token)
	fmt.Println("\nexport VAULT_TOKEN=" + lr.Token)
	return nil
}

func cmdPublishKeys(server string) error {
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	mk, err := unlockMasterKey(c)
	if err != nil {
		return err
	}
	defer mk.Destroy()

	kp, err := cr.GenerateKeyPair()
	if err != nil {
		return err
	}
	priv := kp.Priv.Bytes()
	defer cr.Zero(priv)

	nonce, ct, err := cr.Encrypt(mk.Bytes(), priv, []byte(keyWrapAAD))
	if err != nil {
		return err
	}
	var resp struct {
		UserID string `json:"user_id"`
	}
	err = c.post("/api/keys", map[string]any{
		"public_key":       kp.Pub.Bytes(),
		"private_key_wrap": auth.KeyWrap{Nonce: nonce, Ciphertext: ct},
	}, &resp)
	if err != nil {
		return err
	}
	fmt.Println("key pair published for", resp.UserID)
	return nil
}

func cmdAdd(server, title, site, user, pass string, family bool) error {
	if title == "" || pass == "" {
		return fmt.Errorf("--title and --pass required")
	}
	if strings.HasPrefix(pass, "gen:") {
		var n int
		_, _ = fmt.Sscanf(pass, "gen:%d", &n)
		if n <= 0 {
			n = 20
		}
		pass = genPassword(n)
	}
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	mk, err := unlockMasterKey(c)
	if err != nil {
		return err
	}
	defer mk.Destroy()

	bundle, err := vault.EncryptItem(vault.Payload{
		Fields: map[string]string{"username": user, "password": pass},
	}, mk.Bytes())
	if err != nil {
		return err
	}
	visibility := vault.VisibilityPrivate
	if family {
		visibility = vault.VisibilityFamilyMetadata
	}
	var it vault.Item
	err = c.post("/api/items", map[string]any{
		"type":        vault.TypePassword,
		"title":       title,
		"url":         site,
		"visibility":  visibility,
		"requestable": family,
		"bundle":      bundle,
	}, &it)
	if err != nil {
		return err
	}
	fmt.Println("added item id:", it.ID)
	return nil
}

func cmdGet(server, id string) error {
	if id == "" {
		return fmt.Errorf("--id required")
	}
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	mk, err := unlockMasterKey(c)
	if err != nil {
		return err
	}
	defer mk.Destroy()

	var it vault.Item
	if err := c.get("/api/items/"+id, &it); err != nil {
		return err
	}
	payload, err := vault.DecryptItem(it.Bundle, mk.Bytes())
	if err != nil {
		return err
	}
	printJSON(map[string]any{"id": it.ID, "title": it.Title, "url": it.URL, "payload": payload})
	return nil
}

func cmdList(server string, shared bool) error {
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	path := "/api/items"
	if shared {
		path = "/api/items/shared"
	}
	var out json.RawMessage
	if err := c.get(path, &out); err != nil {
		return err
	}
	printRaw(out)
	return nil
}

func cmdRequest(server, itemID, reason string) error {
	if itemID == "" {
		return fmt.Errorf("--item required")
	}
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	var req sharing.AccessRequest
	if err := c.post("/api/requests", map[string]string{"item_id": itemID, "reason": reason}, &req); err != nil {
		return err
	}
	fmt.Println("request", req.ID, "is", req.Status)
	return nil
}

func cmdRequests(server string, outgoing bool) error {
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	path := "/api/requests/incoming"
	if outgoing {
		path = "/api/requests/outgoing"
	}
	var out json.RawMessage
	if err := c.get(path, &out); err != nil {
		return err
	}
	printRaw(out)
	return nil
}

// cmdApprove is the owner-side grant ceremony: unwrap the item DEK with the
// master key, look up the requester's public key, seal the DEK to it, and
// submit the box. The DEK exists in this process only.
func cmdApprove(server, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("--id required")
	}
	c, err := authedClient(server)
	if err != nil {
		return err
	}

	var incoming []sharing.AccessRequest
	if err := c.get("/api/requests/incoming", &incoming); err != nil {
		return err
	}
	var req *sharing.AccessRequest
	for i := range incoming {
		if incoming[i].ID == requestID {
			req = &incoming[i]
			break
		}
	}
	if req == nil {
		return fmt.Errorf("request %s not found among your incoming requests", requestID)
	}

	mk, err := unlockMasterKey(c)
	if err != nil {
		return err
	}
	defer mk.Destroy()

	var it vault.Item
	if err := c.get("/api/items/"+req.ItemID, &it); err != nil {
		return err
	}
	dek, err := vault.UnwrapDEK(it.Bundle, mk.Bytes())
	if err != nil {
		return err
	}
	defer cr.Zero(dek)

	var dir struct {
		PublicKey []byte `json:"public_key"`
	}
	if err := c.get("/api/keys/"+req.RequesterID, &dir); err != nil {
		return err
	}
	box, err := cr.SealToPublicKey(dir.PublicKey, dek)
	if err != nil {
		return err
	}

	var resp struct {
		Grant sharing.ShareGrant `json:"grant"`
	}
	if err := c.post("/api/requests/"+requestID+"/approve", map[string]any{"wrapped_dek": box}, &resp); err != nil {
		return err
	}
	fmt.Println("granted until", resp.Grant.ExpiresAt.Format(time.RFC3339))
	return nil
}

func cmdDecide(server, requestID, action, note string) error {
	if requestID == "" {
		return fmt.Errorf("--id required")
	}
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	var req sharing.AccessRequest
	if err := c.post("/api/requests/"+requestID+"/"+action, map[string]string{"note": note}, &req); err != nil {
		return err
	}
	fmt.Println("request", req.ID, "is now", req.Status)
	return nil
}

// cmdGrants recovers the private key from its wrap, opens each grant box and
// decrypts the shared payloads.
func cmdGrants(server string) error {
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	mk, err := unlockMasterKey(c)
	if err != nil {
		return err
	}
	defer mk.Destroy()

	var keys struct {
		PublicKey      []byte        `json:"public_key"`
		PrivateKeyWrap *auth.KeyWrap `json:"private_key_wrap"`
	}
	if err := c.get("/api/keys", &keys); err != nil {
		return err
	}
	if keys.PrivateKeyWrap == nil {
		return fmt.Errorf("no key pair published; run vaultctl keys first")
	}
	priv, err := cr.Decrypt(mk.Bytes(), keys.PrivateKeyWrap.Nonce, keys.PrivateKeyWrap.Ciphertext, []byte(keyWrapAAD))
	if err != nil {
		return err
	}
	defer cr.Zero(priv)

	var views []sharing.GrantView
	if err := c.get("/api/grants", &views); err != nil {
		return err
	}
	if len(views) == 0 {
		fmt.Println("no active grants")
		return nil
	}
	for _, v := range views {
		dek, err := cr.OpenFromPrivateKey(keys.PublicKey, priv, v.Grant.WrappedDEK)
		if err != nil {
			fmt.Printf("grant %s: cannot open: %v\n", v.Grant.ID, err)
			continue
		}
		payload, err := vault.DecryptPayloadWithDEK(vault.Bundle{Payload: v.Payload, Meta: v.Meta}, dek)
		cr.Zero(dek)
		if err != nil {
			fmt.Printf("grant %s: %v\n", v.Grant.ID, err)
			continue
		}
		printJSON(map[string]any{
			"grant":   v.Grant.ID,
			"item":    v.Item.Title,
			"expires": v.Grant.ExpiresAt.Format(time.RFC3339),
			"payload": payload,
		})
	}
	return nil
}

func cmdRevoke(server, grantID string) error {
	if grantID == "" {
		return fmt.Errorf("--id required")
	}
	c, err := authedClient(server)
	if err != nil {
		return err
	}
	var g sharing.ShareGrant
	if err := c.post("/api/grants/"+grantID+"/revoke", struct{}{}, &g); err != nil {
		return err
	}
	fmt.Println("revoked grant", g.ID)
	return nil
}

// ---- client plumbing ----

type client struct {
	base  string
	token string
	http  *http.Client
}

func newClient(base string) *client {
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 30 * time.Second}}
}

func authedClient(base string) (*client, error) {
	tok := os.Getenv("VAULT_TOKEN")
	if tok == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set; run vaultctl login first")
	}
	c := newClient(base)
	c.token = tok
	return c, nil
}

func (c *client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *client) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *client) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// unlockMasterKey prompts for the account password and re-derives the master
// key from the salt the server stores. The password never leaves the process;
// the key is pinned in RAM until the caller destroys the guard.
func unlockMasterKey(c *client) (*cr.Guard, error) {
	var sess struct {
		Salt []byte `json:"salt"`
	}
	if err := c.get("/api/session", &sess); err != nil {
		return nil, err
	}
	pw, err := promptSecret("Password: ")
	if err != nil {
		return nil, err
	}
	defer cr.Zero(pw)
	mk, err := cr.DeriveMasterKey(pw, sess.Salt, cr.InteractiveKDF())
	if err != nil {
		return nil, err
	}
	g := cr.NewGuard(append([]byte(nil), mk[:]...))
	cr.Zero32(&mk)
	return g, nil
}

// ---- utilities ----

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func promptSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	br := bufio.NewReader(os.Stdin)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func promptLine(prompt string) (string, error) {
	b, err := promptSecret(prompt)
	return string(b), err
}

func genPassword(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()-_=+[]{}"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func printRaw(raw json.RawMessage) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	printJSON(v)
}

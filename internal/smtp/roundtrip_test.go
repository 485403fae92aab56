package smtp_test

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abyssox/opentrashmail/internal/config"
	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/message"
	smtpserver "github.com/abyssox/opentrashmail/internal/smtp"
	"github.com/abyssox/opentrashmail/internal/testutil"
)

// testEnv runs a full stack on a plaintext and an implicit-TLS listener
// backed by a temporary mailbox root.
type testEnv struct {
	addr      string
	tlsAddr   string
	dataDir   string
	store     *mailbox.Store
	clientTLS *tls.Config
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// generateTestTLS generates a self-signed ECDSA certificate for testing.
// Returns server and client TLS configs.
func generateTestTLS(t *testing.T) (serverCfg, clientCfg *tls.Config) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test.local"},
		DNSNames:     []string{"test.local", "localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(certPEM)

	serverCfg = &tls.Config{Certificates: []tls.Certificate{cert}}
	clientCfg = &tls.Config{RootCAs: pool, ServerName: "test.local"}
	return
}

// freeAddr pre-allocates a port. There is a small TOCTOU window but this is
// acceptable in test environments.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func waitForListener(addr string) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			c.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testConfig(t *testing.T, addr, tlsAddr string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Hostname = "test.local"
	cfg.BaseURL = "https://mail.test.local"
	cfg.Listeners = []config.ListenerConfig{
		{Address: addr, Mode: config.ModeSmtp},
		{Address: tlsAddr, Mode: config.ModeSmtps},
	}
	cfg.Limits.MaxRecipients = 10
	cfg.Limits.MaxMessageSize = 10 * 1024 * 1024
	cfg.Timeouts.Connection = "5s"
	cfg.Mailbox.DataDir = t.TempDir()
	return cfg
}

func newTestEnv(t *testing.T, modify ...func(*config.Config)) *testEnv {
	t.Helper()

	serverTLS, clientTLS := generateTestTLS(t)
	addr, tlsAddr := freeAddr(t), freeAddr(t)

	cfg := testConfig(t, addr, tlsAddr)
	for _, m := range modify {
		m(&cfg)
	}

	stack, err := smtpserver.NewStack(smtpserver.StackConfig{
		Config:    cfg,
		TLSConfig: serverTLS,
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	env := &testEnv{
		addr:      addr,
		tlsAddr:   tlsAddr,
		dataDir:   cfg.Mailbox.DataDir,
		store:     stack.Store,
		clientTLS: clientTLS,
		cancel:    cancel,
	}

	env.wg.Add(1)
	go func() {
		defer env.wg.Done()
		_ = stack.Run(ctx)
	}()

	waitForListener(addr)
	waitForListener(tlsAddr)

	t.Cleanup(func() {
		cancel()
		env.wg.Wait()
		stack.Close() //nolint:errcheck
	})

	return env
}

// records returns the stored records of a mailbox, oldest first.
func (env *testEnv) records(t *testing.T, address string) []*mailbox.Record {
	t.Helper()
	ids, err := env.store.IDs(address)
	if err != nil {
		t.Fatalf("IDs(%s): %v", address, err)
	}
	var out []*mailbox.Record
	for _, id := range ids {
		rec, err := env.store.Get(address, id)
		if err != nil {
			t.Fatalf("Get(%s, %s): %v", address, id, err)
		}
		out = append(out, rec)
	}
	return out
}

func (env *testEnv) mailboxExists(address string) bool {
	_, err := os.Stat(filepath.Join(env.dataDir, address))
	return err == nil
}

// smtpClient is a thin raw-TCP SMTP driver for integration tests.
type smtpClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialSMTP(t *testing.T, addr string) *smtpClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &smtpClient{conn: conn, r: bufio.NewReader(conn)}
}

func dialSMTPS(t *testing.T, addr string, cfg *tls.Config) *smtpClient {
	t.Helper()
	d := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := tls.DialWithDialer(d, "tcp", addr, cfg)
	if err != nil {
		t.Fatalf("dial tls %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &smtpClient{conn: conn, r: bufio.NewReader(conn)}
}

// readResponse reads a potentially multi-line SMTP response and returns
// the numeric code and the concatenated message text.
func (c *smtpClient) readResponse(t *testing.T) (int, string) {
	t.Helper()
	var code int
	var lines []string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			t.Fatalf("response too short: %q", line)
		}
		n, err := strconv.Atoi(line[:3])
		if err != nil {
			t.Fatalf("parse response code from %q: %v", line, err)
		}
		code = n
		if len(line) > 4 {
			lines = append(lines, line[4:])
		}
		// A space after the code means this is the final line.
		if len(line) < 4 || line[3] == ' ' {
			break
		}
	}
	return code, strings.Join(lines, "\n")
}

func (c *smtpClient) send(t *testing.T, line string) {
	t.Helper()
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", line); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
}

// mustCode sends cmd and asserts the response code. Returns the response text.
// Pass cmd="" to just read a response without sending (e.g. for the greeting).
func (c *smtpClient) mustCode(t *testing.T, cmd string, wantCode int) string {
	t.Helper()
	if cmd != "" {
		c.send(t, cmd)
	}
	code, msg := c.readResponse(t)
	if code != wantCode {
		t.Fatalf("%q → expected %d, got %d (%s)", cmd, wantCode, code, msg)
	}
	return msg
}

func (c *smtpClient) Greeting(t *testing.T) string {
	return c.mustCode(t, "", 220)
}

func (c *smtpClient) Ehlo(t *testing.T) string {
	return c.mustCode(t, "EHLO localhost", 250)
}

func (c *smtpClient) Quit(t *testing.T) {
	c.mustCode(t, "QUIT", 221)
	c.conn.Close()
}

func (c *smtpClient) Rset(t *testing.T) {
	c.mustCode(t, "RSET", 250)
}

// StartTLS sends STARTTLS and upgrades the connection to TLS.
// Must be called after EHLO. Re-issues EHLO after the upgrade.
func (c *smtpClient) StartTLS(t *testing.T, cfg *tls.Config) {
	t.Helper()
	c.mustCode(t, "STARTTLS", 220)
	tlsConn := tls.Client(c.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		t.Fatalf("TLS handshake: %v", err)
	}
	c.conn = tlsConn
	c.r = bufio.NewReader(tlsConn)
	// Re-issue EHLO on the upgraded connection.
	c.Ehlo(t)
}

// SendMessage executes a full MAIL FROM / RCPT TO / DATA transaction.
func (c *smtpClient) SendMessage(t *testing.T, from, to, subject, body string) {
	t.Helper()
	c.mustCode(t, fmt.Sprintf("MAIL FROM:<%s>", from), 250)
	c.mustCode(t, fmt.Sprintf("RCPT TO:<%s>", to), 250)
	c.mustCode(t, "DATA", 354)
	msg := "From: " + from + "\r\nTo: " + to + "\r\nSubject: " + subject + "\r\n\r\n" + body
	if _, err := fmt.Fprintf(c.conn, "%s\r\n.\r\n", msg); err != nil {
		t.Fatalf("write DATA body: %v", err)
	}
	code, resp := c.readResponse(t)
	if code != 250 {
		t.Fatalf("DATA end: expected 250, got %d (%s)", code, resp)
	}
}

// SendRaw runs MAIL FROM, one RCPT TO per recipient and DATA with the raw
// message, returning the final reply.
func (c *smtpClient) SendRaw(t *testing.T, from string, rcpts []string, data []byte) (int, string) {
	t.Helper()
	c.mustCode(t, fmt.Sprintf("MAIL FROM:<%s>", from), 250)
	for _, rcpt := range rcpts {
		c.mustCode(t, fmt.Sprintf("RCPT TO:<%s>", rcpt), 250)
	}
	c.mustCode(t, "DATA", 354)

	msg := strings.ReplaceAll(string(data), "\r\n.", "\r\n..")
	if !strings.HasSuffix(msg, "\r\n") {
		msg += "\r\n"
	}
	if _, err := io.WriteString(c.conn, msg+".\r\n"); err != nil {
		t.Fatalf("write DATA body: %v", err)
	}
	return c.readResponse(t)
}

// RcptExpect sends RCPT TO and asserts the given response code.
func (c *smtpClient) RcptExpect(t *testing.T, to string, wantCode int) {
	t.Helper()
	c.send(t, fmt.Sprintf("RCPT TO:<%s>", to))
	code, msg := c.readResponse(t)
	if code != wantCode {
		t.Fatalf("RCPT TO <%s>: expected %d, got %d (%s)", to, wantCode, code, msg)
	}
}

// MailExpect sends MAIL FROM and asserts the given response code.
func (c *smtpClient) MailExpect(t *testing.T, from string, wantCode int) {
	t.Helper()
	c.send(t, fmt.Sprintf("MAIL FROM:<%s>", from))
	code, msg := c.readResponse(t)
	if code != wantCode {
		t.Fatalf("MAIL FROM <%s>: expected %d, got %d (%s)", from, wantCode, code, msg)
	}
}

func TestRoundTripGreeting(t *testing.T) {
	env := newTestEnv(t)
	c := dialSMTP(t, env.addr)
	greeting := c.Greeting(t)
	if !strings.Contains(greeting, "test.local") {
		t.Errorf("greeting %q does not contain hostname", greeting)
	}
	c.Ehlo(t)
	c.Quit(t)
}

func TestRoundTripDeliveryWritesRecord(t *testing.T) {
	env := newTestEnv(t)

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	c.SendMessage(t, "sender@example.com", "alice@test.local", "Hello", "Test body.")
	c.Quit(t)

	recs := env.records(t, "alice@test.local")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.SenderIP != "127.0.0.1" {
		t.Errorf("sender_ip = %q, want bare host", rec.SenderIP)
	}
	if rec.From != "sender@example.com" || rec.Parsed.Subject != "Hello" {
		t.Errorf("record from=%q subject=%q", rec.From, rec.Parsed.Subject)
	}
	if !strings.Contains(rec.Parsed.Body, "Test body.") {
		t.Errorf("body = %q", rec.Parsed.Body)
	}
	if len(rec.Rcpts) != 1 || rec.Rcpts[0] != "alice@test.local" {
		t.Errorf("rcpts = %v", rec.Rcpts)
	}
	if !strings.Contains(rec.Raw, "Subject: Hello") {
		t.Errorf("raw does not hold the message: %q", rec.Raw)
	}
}

func TestRoundTripMultipleRecipientsShareID(t *testing.T) {
	env := newTestEnv(t)

	data := testutil.TestMessage{
		From:    "sender@example.com",
		To:      "alice@test.local",
		Subject: "Both",
		Text:    "hello both",
		Attachments: []testutil.TestAttachment{
			{Filename: "note.txt", ContentType: "text/plain", Data: []byte("attached")},
		},
	}.Build(t)

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	code, msg := c.SendRaw(t, "sender@example.com", []string{"Alice@Test.local", "bob@test.local"}, data)
	if code != 250 {
		t.Fatalf("DATA end: expected 250, got %d (%s)", code, msg)
	}
	c.Quit(t)

	alice, err := env.store.IDs("alice@test.local")
	if err != nil || len(alice) != 1 {
		t.Fatalf("alice ids = %v, %v", alice, err)
	}
	bob, err := env.store.IDs("bob@test.local")
	if err != nil || len(bob) != 1 {
		t.Fatalf("bob ids = %v, %v", bob, err)
	}
	if alice[0] != bob[0] {
		t.Errorf("ids differ: %s vs %s", alice[0], bob[0])
	}

	rec, err := env.store.Get("bob@test.local", bob[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Rcpts) != 2 || rec.Rcpts[0] != "Alice@Test.local" {
		t.Errorf("rcpts = %v, want the envelope list as received", rec.Rcpts)
	}
	if len(rec.Parsed.AttachmentsDetails) != 1 {
		t.Fatalf("attachments = %+v", rec.Parsed.AttachmentsDetails)
	}
	att := rec.Parsed.AttachmentsDetails[0]
	if !strings.HasPrefix(att.DownloadURL, "https://mail.test.local/api/attachment/bob@test.local/") {
		t.Errorf("download_url = %q", att.DownloadURL)
	}
	path, err := env.store.AttachmentPath("bob@test.local", att.ID)
	if err != nil {
		t.Fatalf("AttachmentPath: %v", err)
	}
	if got, err := os.ReadFile(path); err != nil || string(got) != "attached" {
		t.Errorf("attachment content = %q, %v", got, err)
	}
}

func TestRoundTripMultipleMessagesSameSession(t *testing.T) {
	env := newTestEnv(t)

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	for i := 1; i <= 3; i++ {
		c.SendMessage(t, "sender@example.com", "alice@test.local", fmt.Sprintf("Message %d", i), "Body.")
		// Record ids are millisecond timestamps.
		time.Sleep(5 * time.Millisecond)
	}
	c.Quit(t)

	recs := env.records(t, "alice@test.local")
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Parsed.Subject != "Message 1" || recs[2].Parsed.Subject != "Message 3" {
		t.Errorf("records out of order: %q .. %q", recs[0].Parsed.Subject, recs[2].Parsed.Subject)
	}
}

func TestRoundTripResetClearsEnvelope(t *testing.T) {
	env := newTestEnv(t)

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	c.MailExpect(t, "sender@example.com", 250)
	c.RcptExpect(t, "first@test.local", 250)
	c.Rset(t)
	c.SendMessage(t, "sender@example.com", "second@test.local", "After RSET", "Body.")
	c.Quit(t)

	if env.mailboxExists("first@test.local") {
		t.Error("recipient from the reset transaction received mail")
	}
	if got := len(env.records(t, "second@test.local")); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}
}

func TestRoundTripStartTLS(t *testing.T) {
	env := newTestEnv(t)

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	ehlo := c.Ehlo(t)
	if !strings.Contains(ehlo, "STARTTLS") {
		t.Fatalf("STARTTLS not advertised: %q", ehlo)
	}
	c.StartTLS(t, env.clientTLS)
	c.SendMessage(t, "sender@example.com", "alice@test.local", "Secure", "Over TLS.")
	c.Quit(t)

	if got := len(env.records(t, "alice@test.local")); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}
}

func TestRoundTripImplicitTLS(t *testing.T) {
	env := newTestEnv(t)

	c := dialSMTPS(t, env.tlsAddr, env.clientTLS)
	c.Greeting(t)
	c.Ehlo(t)
	c.SendMessage(t, "sender@example.com", "alice@test.local", "SMTPS", "Implicit TLS.")
	c.Quit(t)

	if got := len(env.records(t, "alice@test.local")); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}
}

func TestRoundTripOversizedAttachmentRejected(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Limits.MaxAttachmentSize = 10
	})

	data := testutil.TestMessage{
		From:    "sender@example.com",
		To:      "alice@test.local",
		Subject: "Too big",
		Text:    "see attachment",
		Attachments: []testutil.TestAttachment{
			{Filename: "big.bin", Data: []byte(strings.Repeat("x", 100))},
		},
	}.Build(t)

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	code, msg := c.SendRaw(t, "sender@example.com", []string{"alice@test.local", "bob@test.local"}, data)
	if code != 500 {
		t.Fatalf("DATA end: expected 500, got %d (%s)", code, msg)
	}
	if !strings.Contains(msg, "Attachment too large. Max size: 0.00MB") {
		t.Errorf("reply = %q", msg)
	}

	// The session stays usable.
	c.SendMessage(t, "sender@example.com", "carol@test.local", "Small", "Body.")
	c.Quit(t)

	if env.mailboxExists("alice@test.local") || env.mailboxExists("bob@test.local") {
		t.Error("rejected envelope left a mailbox behind")
	}
	if got := len(env.records(t, "carol@test.local")); got != 1 {
		t.Errorf("expected 1 record for the follow-up message, got %d", got)
	}
}

func TestRoundTripDiscardUnknownDomain(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Domains.Accept = []string{"test.local", "*.example.org"}
		cfg.Domains.DiscardUnknown = true
	})

	data := testutil.TestMessage{
		From:    "sender@example.com",
		To:      "alice@test.local",
		Subject: "Policy",
		Text:    "hello",
	}.Build(t)

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	code, msg := c.SendRaw(t, "sender@example.com",
		[]string{"alice@test.local", "bob@mx.example.org", "eve@elsewhere.net"}, data)
	if code != 250 {
		t.Fatalf("DATA end: expected 250, got %d (%s)", code, msg)
	}
	c.Quit(t)

	if !env.mailboxExists("alice@test.local") || !env.mailboxExists("bob@mx.example.org") {
		t.Error("accepted recipients were not stored")
	}
	if env.mailboxExists("eve@elsewhere.net") {
		t.Error("unknown domain was stored")
	}
}

func TestRoundTripGlobalWebhook(t *testing.T) {
	type hit struct {
		contentType string
		rec         mailbox.Record
	}
	hits := make(chan hit, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var h hit
		h.contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&h.rec)
		hits <- h
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(hook.Close)

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Webhook.GlobalURL = hook.URL + "/incoming"
	})

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	c.SendMessage(t, "sender@example.com", "alice@test.local", "Hooked", "Body.")
	c.Quit(t)

	// Webhooks are awaited before DATA completes.
	select {
	case h := <-hits:
		if h.contentType != "application/json" {
			t.Errorf("content type = %q", h.contentType)
		}
		if h.rec.Parsed.Subject != "Hooked" || h.rec.Rcpts[0] != "alice@test.local" {
			t.Errorf("payload = %+v", h.rec)
		}
	default:
		t.Fatal("global webhook was not called before DATA completed")
	}
}

func TestRoundTripTooManyRecipients(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Limits.MaxRecipients = 2
	})

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	c.MailExpect(t, "sender@example.com", 250)
	c.RcptExpect(t, "a@test.local", 250)
	c.RcptExpect(t, "b@test.local", 250)
	c.send(t, "RCPT TO:<c@test.local>")
	code, _ := c.readResponse(t)
	if code/100 != 4 && code/100 != 5 {
		t.Errorf("third recipient accepted with %d", code)
	}
}

func TestRoundTripEmptyFromBounce(t *testing.T) {
	env := newTestEnv(t)

	data := "To: alice@test.local\r\nSubject: Bounce\r\n\r\nDelivery status notification.\r\n"

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	code, msg := c.SendRaw(t, "", []string{"alice@test.local"}, []byte(data))
	if code != 250 {
		t.Fatalf("DATA end: expected 250, got %d (%s)", code, msg)
	}
	c.Quit(t)

	recs := env.records(t, "alice@test.local")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].From != "" {
		t.Errorf("from = %q, want empty envelope sender", recs[0].From)
	}
}

func TestRoundTripDefaultSubject(t *testing.T) {
	env := newTestEnv(t)

	data := "From: someone@example.com\r\n\r\nno subject here\r\n"

	c := dialSMTP(t, env.addr)
	c.Greeting(t)
	c.Ehlo(t)
	if code, msg := c.SendRaw(t, "env@example.com", []string{"alice@test.local"}, []byte(data)); code != 250 {
		t.Fatalf("DATA end: expected 250, got %d (%s)", code, msg)
	}
	c.Quit(t)

	recs := env.records(t, "alice@test.local")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Parsed.Subject != message.DefaultSubject {
		t.Errorf("subject = %q", recs[0].Parsed.Subject)
	}
	if recs[0].From != "someone@example.com" {
		t.Errorf("from = %q, want the header sender", recs[0].From)
	}
}

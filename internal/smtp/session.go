package smtp

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

// phase is the state of the client-side SMTP state machine. The session
// advances strictly forward; any failed transition aborts the exchange and
// the connection is closed exactly once regardless of where it stopped.
type phase int

const (
	phaseGreeting phase = iota
	phaseEhlo
	phaseStartTLS
	phaseAuth
	phaseMailFrom
	phaseRcptTo
	phaseData
	phaseSent
	phaseClosed
)

// Auth holds AUTH LOGIN credentials.
type Auth struct {
	Username string
	Password string
}

// UpgradeFunc upgrades a plaintext stream to TLS. A nil UpgradeFunc means
// the session cannot upgrade and proceeds in degraded mode after STARTTLS.
type UpgradeFunc func(io.ReadWriteCloser) (io.ReadWriteCloser, error)

// session runs one SMTP exchange over an injected byte stream. It owns no
// dialing or TLS policy; the Client wires those in, tests wire in fakes.
type session struct {
	conn        io.ReadWriteCloser
	br          *bufio.Reader
	heloName    string
	recorder    Recorder
	upgrade     UpgradeFunc
	implicitTLS bool

	phase      phase
	extensions map[string]string
	closed     bool
}

func newSession(conn io.ReadWriteCloser, heloName string, recorder Recorder, upgrade UpgradeFunc, implicitTLS bool) *session {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &session{
		conn:        conn,
		br:          bufio.NewReader(conn),
		heloName:    heloName,
		recorder:    recorder,
		upgrade:     upgrade,
		implicitTLS: implicitTLS,
		phase:       phaseGreeting,
		extensions:  make(map[string]string),
	}
}

// Close closes the underlying connection. Safe to call multiple times; the
// stream is closed at most once.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.phase = phaseClosed
	return s.conn.Close()
}

// run performs the full exchange: greeting, EHLO/HELO, optional STARTTLS,
// AUTH LOGIN, envelope, DATA, QUIT. It returns a *DeliveryError on any
// failed transition. The caller is responsible for Close.
func (s *session) run(auth Auth, from, to string, data []byte) error {
	if err := s.greeting(); err != nil {
		return err
	}
	if err := s.hello(); err != nil {
		return err
	}
	if !s.implicitTLS {
		if err := s.startTLS(); err != nil {
			return err
		}
	}
	if err := s.authenticate(auth); err != nil {
		return err
	}
	if err := s.envelope(from, to); err != nil {
		return err
	}
	if err := s.sendData(data); err != nil {
		return err
	}
	s.quit()
	return nil
}

func (s *session) greeting() error {
	s.phase = phaseGreeting
	code, msg, err := s.readReply()
	if err != nil {
		return s.ioError(StepGreeting, err)
	}
	s.recorder.Record(Event{Step: StepGreeting, Code: code, Detail: msg})
	if code != 220 {
		return &DeliveryError{
			Kind:    KindConnectionRejected,
			Code:    code,
			Message: fmt.Sprintf("server rejected connection: %d %s", code, msg),
		}
	}
	return nil
}

func (s *session) hello() error {
	s.phase = phaseEhlo
	code, msg, err := s.cmd("EHLO %s", s.heloName)
	if err != nil {
		return s.ioError(StepEhlo, err)
	}
	if code == 250 {
		s.recorder.Record(Event{Step: StepEhlo, Code: code, Detail: msg})
		s.parseExtensions(msg)
		return nil
	}

	// EHLO refused, fall back to HELO.
	code, msg, err = s.cmd("HELO %s", s.heloName)
	if err != nil {
		return s.ioError(StepEhlo, err)
	}
	s.recorder.Record(Event{Step: StepEhlo, Code: code, Detail: msg})
	if code != 250 {
		return &DeliveryError{
			Kind:    KindConnectionRejected,
			Code:    code,
			Message: fmt.Sprintf("handshake failed: %d %s", code, msg),
		}
	}
	return nil
}

// parseExtensions records the EHLO keyword lines. The first line is the
// server greeting; the rest are extensions like "STARTTLS" or "SIZE 10240".
func (s *session) parseExtensions(reply string) {
	lines := strings.Split(reply, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		keyword, params, _ := strings.Cut(strings.TrimSpace(line), " ")
		if keyword == "" {
			continue
		}
		s.extensions[strings.ToUpper(keyword)] = params
	}
}

// startTLS upgrades the stream on ports without implicit TLS. A server that
// does not advertise or accept STARTTLS leaves the session in degraded
// plaintext mode with a warning event; a failed upgrade after a 220 is a
// hard TLS failure, since the wire state is no longer usable.
func (s *session) startTLS() error {
	s.phase = phaseStartTLS

	if _, ok := s.extensions["STARTTLS"]; !ok {
		s.recorder.Record(Event{Step: StepStartTLS, Detail: "not advertised, continuing without encryption", Warning: true})
		return nil
	}

	code, msg, err := s.cmd("STARTTLS")
	if err != nil {
		return s.ioError(StepStartTLS, err)
	}
	if code != 220 {
		s.recorder.Record(Event{Step: StepStartTLS, Code: code, Detail: fmt.Sprintf("refused (%s), continuing without encryption", msg), Warning: true})
		return nil
	}

	if s.upgrade == nil {
		s.recorder.Record(Event{Step: StepStartTLS, Code: code, Detail: "upgrade unavailable, continuing without encryption", Warning: true})
		return nil
	}

	upgraded, err := s.upgrade(s.conn)
	if err != nil {
		return &DeliveryError{
			Kind:    KindTLSFailure,
			Message: fmt.Sprintf("TLS upgrade failed: %v", err),
		}
	}
	s.conn = upgraded
	s.br = bufio.NewReader(upgraded)
	s.recorder.Record(Event{Step: StepStartTLS, Code: code, Detail: "connection upgraded"})

	// The pre-TLS extension list is no longer valid.
	s.extensions = make(map[string]string)
	return s.hello()
}

func (s *session) authenticate(auth Auth) error {
	s.phase = phaseAuth

	code, msg, err := s.cmd("AUTH LOGIN")
	if err != nil {
		return s.ioError(StepAuth, err)
	}
	if code != 334 {
		s.recorder.Record(Event{Step: StepAuth, Code: code, Detail: msg})
		return &DeliveryError{
			Kind:    KindAuthenticationFailed,
			Code:    code,
			Message: fmt.Sprintf("AUTH LOGIN not accepted: %d %s", code, msg),
		}
	}

	code, msg, err = s.cmd("%s", base64.StdEncoding.EncodeToString([]byte(auth.Username)))
	if err != nil {
		return s.ioError(StepAuth, err)
	}
	if code != 334 {
		s.recorder.Record(Event{Step: StepAuth, Code: code, Detail: msg})
		return &DeliveryError{
			Kind:    KindAuthenticationFailed,
			Code:    code,
			Message: fmt.Sprintf("username rejected: %d %s", code, msg),
		}
	}

	code, msg, err = s.cmd("%s", base64.StdEncoding.EncodeToString([]byte(auth.Password)))
	if err != nil {
		return s.ioError(StepAuth, err)
	}
	s.recorder.Record(Event{Step: StepAuth, Code: code})
	if code != 235 {
		return &DeliveryError{
			Kind:    KindAuthenticationFailed,
			Code:    code,
			Message: fmt.Sprintf("authentication failed: %d %s", code, msg),
		}
	}
	return nil
}

func (s *session) envelope(from, to string) error {
	s.phase = phaseMailFrom
	code, msg, err := s.cmd("MAIL FROM:<%s>", from)
	if err != nil {
		return s.ioError(StepMailFrom, err)
	}
	s.recorder.Record(Event{Step: StepMailFrom, Code: code})
	if code != 250 {
		return &DeliveryError{
			Kind:    KindDeliveryRejected,
			Code:    code,
			Message: fmt.Sprintf("MAIL FROM rejected: %d %s", code, msg),
		}
	}

	s.phase = phaseRcptTo
	code, msg, err = s.cmd("RCPT TO:<%s>", to)
	if err != nil {
		return s.ioError(StepRcptTo, err)
	}
	s.recorder.Record(Event{Step: StepRcptTo, Code: code})
	if code != 250 {
		return &DeliveryError{
			Kind:    KindInvalidRecipient,
			Code:    code,
			Message: fmt.Sprintf("recipient rejected: %d %s", code, msg),
		}
	}
	return nil
}

func (s *session) sendData(data []byte) error {
	s.phase = phaseData
	code, msg, err := s.cmd("DATA")
	if err != nil {
		return s.ioError(StepData, err)
	}
	if code != 354 {
		s.recorder.Record(Event{Step: StepData, Code: code, Detail: msg})
		return &DeliveryError{
			Kind:    KindDeliveryRejected,
			Code:    code,
			Message: fmt.Sprintf("DATA rejected: %d %s", code, msg),
		}
	}

	if _, err := s.conn.Write(dotStuff(data)); err != nil {
		return s.ioError(StepData, err)
	}

	code, msg, err = s.readReply()
	if err != nil {
		return s.ioError(StepData, err)
	}
	s.recorder.Record(Event{Step: StepData, Code: code})
	if code != 250 {
		return &DeliveryError{
			Kind:    KindDeliveryRejected,
			Code:    code,
			Message: fmt.Sprintf("message rejected: %d %s", code, msg),
		}
	}

	s.phase = phaseSent
	return nil
}

// quit ends the exchange politely. Failures here do not matter: the message
// is already accepted and the connection is torn down either way.
func (s *session) quit() {
	code, _, err := s.cmd("QUIT")
	if err != nil {
		return
	}
	s.recorder.Record(Event{Step: StepQuit, Code: code})
}

// cmd writes one CRLF-terminated command and reads the reply.
func (s *session) cmd(format string, args ...any) (int, string, error) {
	line := fmt.Sprintf(format, args...)
	if _, err := io.WriteString(s.conn, line+"\r\n"); err != nil {
		return 0, "", err
	}
	return s.readReply()
}

// readReply reads one SMTP reply, including multiline replies of the form
// "250-first\r\n250 last\r\n". The reply text joins all lines with "\n".
func (s *session) readReply() (int, string, error) {
	var (
		code  int
		lines []string
	)
	for {
		line, err := s.br.ReadString('\n')
		if err != nil {
			return 0, "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return 0, "", fmt.Errorf("short reply line: %q", line)
		}

		c, err := strconv.Atoi(line[:3])
		if err != nil {
			return 0, "", fmt.Errorf("malformed reply code: %q", line)
		}
		code = c

		text := ""
		if len(line) > 4 {
			text = line[4:]
		}
		lines = append(lines, text)

		if len(line) == 3 || line[3] != '-' {
			break
		}
	}
	return code, strings.Join(lines, "\n"), nil
}

// ioError classifies a transport-level failure on the current step.
func (s *session) ioError(step Step, err error) error {
	kind := KindUnknown
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		kind = KindTimeout
	}
	s.recorder.Record(Event{Step: step, Detail: err.Error(), Warning: true})
	return &DeliveryError{
		Kind:    kind,
		Message: fmt.Sprintf("%s failed: %v", step, err),
	}
}

// dotStuff prepares message data for the DATA phase: leading dots on a line
// are doubled and the terminator line is appended.
func dotStuff(data []byte) []byte {
	text := string(data)
	if !strings.HasSuffix(text, "\r\n") {
		text += "\r\n"
	}

	lines := strings.Split(text, "\r\n")
	for i, line := range lines {
		if strings.HasPrefix(line, ".") {
			lines[i] = "." + line
		}
	}

	return []byte(strings.Join(lines, "\r\n") + ".\r\n")
}

package mail

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type smtpTranscript struct {
	commands []string
	data     string
}

// serveOneSMTP accepts a single connection and speaks just enough SMTP for
// net/smtp's client.
func serveOneSMTP(t *testing.T, ln net.Listener, out chan<- smtpTranscript) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		close(out)
		return
	}
	defer conn.Close()
	tp := textproto.NewConn(conn)
	var tr smtpTranscript

	_ = tp.PrintfLine("220 localhost ESMTP test")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			break
		}
		verb := strings.ToUpper(strings.Fields(line)[0])
		tr.commands = append(tr.commands, verb)
		switch verb {
		case "EHLO", "HELO":
			_ = tp.PrintfLine("250-localhost")
			_ = tp.PrintfLine("250 8BITMIME")
		case "MAIL", "RCPT":
			_ = tp.PrintfLine("250 ok")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			lines, err := tp.ReadDotLines()
			if err != nil {
				break
			}
			tr.data = strings.Join(lines, "\n")
			_ = tp.PrintfLine("250 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			out <- tr
			return
		default:
			_ = tp.PrintfLine("502 unsupported")
		}
	}
	out <- tr
}

func TestSMTPSenderDelivers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan smtpTranscript, 1)
	go serveOneSMTP(t, ln, done)

	sender, err := NewSMTPSender(ln.Addr().String(), "", "")
	require.NoError(t, err)
	sender.now = func() time.Time { return sendTime }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = sender.Send(ctx, Envelope{From: "user1@api.com", To: "user2@api.com", Subject: "hi\r\nBcc: x@evil.com", Body: "line one\nline two"})
	require.NoError(t, err)

	tr := <-done
	assert.Equal(t, []string{"EHLO", "MAIL", "RCPT", "DATA", "QUIT"}, tr.commands)
	assert.Contains(t, tr.data, "From: user1@api.com")
	assert.Contains(t, tr.data, "To: user2@api.com")
	assert.Contains(t, tr.data, "Subject: hi  Bcc: x@evil.com")
	assert.NotContains(t, tr.data, "\nBcc:")
	assert.Contains(t, tr.data, "line one\nline two")
}

func TestSMTPSenderRejectsBadAddress(t *testing.T) {
	_, err := NewSMTPSender("no-port", "", "")
	assert.Error(t, err)
}

func TestSMTPSenderDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	sender, err := NewSMTPSender(addr, "", "")
	require.NoError(t, err)
	err = sender.Send(context.Background(), Envelope{From: "a@api.com", To: "b@api.com"})
	assert.ErrorContains(t, err, "dial smtp")
}

func TestLogSender(t *testing.T) {
	var b strings.Builder
	s := LogSender{Logger: slogTo(&b)}
	require.NoError(t, s.Send(context.Background(), Envelope{From: "a@api.com", To: "b@api.com", Subject: "s"}))
	assert.Contains(t, b.String(), "to=b@api.com")
}

func slogTo(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/stressoor/pkg/config"
)

func TestReceivers(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "a@x", want: []string{"a@x"}},
		{in: "a@x;b@y", want: []string{"a@x", "b@y"}},
		{in: " a@x ; ;b@y;", want: []string{"a@x", "b@y"}},
		{in: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Receivers(tt.in))
		})
	}
}

func TestMessage(t *testing.T) {
	msg := string(Message("lab@x", "a@x;b@y", ContentHTML, "Nightly", "<html></html>"))

	assert.Equal(t, "From: lab@x\n"+
		"To: a@x;b@y\n"+
		"MIME-Version: 1.0\n"+
		"Content-type: text/html\n"+
		"Subject: Nightly\n\n"+
		"<html></html>", msg)
}

// smtpSession records what a fake relay received.
type smtpSession struct {
	from  string
	rcpts []string
	data  []string
}

// serveSMTP accepts one connection and speaks just enough SMTP for a
// single delivery.
func serveSMTP(t *testing.T, ln net.Listener, done chan<- smtpSession) {
	t.Helper()

	conn, err := ln.Accept()
	if err != nil {
		close(done)

		return
	}
	defer conn.Close()

	var sess smtpSession

	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

	reply("220 relay ready")

	inData := false

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}

		line = strings.TrimRight(line, "\r\n")

		if inData {
			if line == "." {
				inData = false

				reply("250 queued")

				continue
			}

			sess.data = append(sess.data, line)

			continue
		}

		switch cmd := strings.ToUpper(line); {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 relay")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			sess.from = strings.Trim(line[len("MAIL FROM:"):], "<>")
			reply("250 ok")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			sess.rcpts = append(sess.rcpts, strings.Trim(line[len("RCPT TO:"):], "<>"))
			reply("250 ok")
		case cmd == "DATA":
			inData = true

			reply("354 go ahead")
		case cmd == "QUIT":
			reply("221 bye")
			done <- sess

			return
		default:
			reply("502 unsupported")
		}
	}

	done <- sess
}

func TestSend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan smtpSession, 1)

	go serveSMTP(t, ln, done)

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	log, _ := test.NewNullLogger()

	m := New(log, config.MailConfig{
		Server:    host,
		Port:      portNum,
		Sender:    "lab@example.com",
		Receivers: "a@example.com;b@example.com",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, m.Send(ctx, ContentText, "", "Kernel : 6.1\n"))

	sess := <-done

	assert.Equal(t, "lab@example.com", sess.from)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sess.rcpts)
	assert.Contains(t, sess.data, "Subject: "+config.DefaultSubject)
	assert.Contains(t, sess.data, "Content-type: text/plain")
	assert.Contains(t, sess.data, "Kernel : 6.1")
}

func TestSend_NoReceivers(t *testing.T) {
	log, _ := test.NewNullLogger()

	m := New(log, config.MailConfig{Server: "127.0.0.1", Sender: "a@b"})

	err := m.Send(context.Background(), ContentText, "s", "body")
	require.Error(t, err)
}

func TestSend_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	log, _ := test.NewNullLogger()

	m := New(log, config.MailConfig{
		Server:    "127.0.0.1",
		Port:      addr.Port,
		Sender:    "a@b",
		Receivers: "c@d",
	})

	err = m.Send(context.Background(), ContentText, "s", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to")
}

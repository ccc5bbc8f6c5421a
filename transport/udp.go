// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package transport

import (
	"context"

	"github.com/soothill/esp32ctl/protocol"
)

// UDPSender is a CommandSender that performs every exchange as a
// single-shot UDP round trip. It shares its Session's address and
// timeout configuration but never opens a TCP connection.
type UDPSender struct {
	session *Session
}

// UDP returns a sender that routes commands over the session's UDP path.
func (s *Session) UDP() *UDPSender {
	return &UDPSender{session: s}
}

// Send implements interfaces.CommandSender over single datagrams.
func (u *UDPSender) Send(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	return u.session.SendUDP(ctx, cmd)
}

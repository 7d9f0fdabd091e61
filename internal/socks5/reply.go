package socks5

import (
	"fmt"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// WriteCommandNotSupportedReply writes a SOCKS5 reply indicating that the
// requested command is not supported.
func WriteCommandNotSupportedReply(conn net.Conn, atyp byte) {
	_, _ = newZeroAddrReply(txsocks5.RepCommandNotSupported, atyp).WriteTo(conn)
}

// WriteHostUnreachableReply writes a SOCKS5 reply indicating that the
// destination could not be reached.
func WriteHostUnreachableReply(conn net.Conn, atyp byte) {
	_, _ = newZeroAddrReply(txsocks5.RepHostUnreachable, atyp).WriteTo(conn)
}

// WriteConnectionRefusedReply writes a SOCKS5 reply indicating that the
// destination actively refused the connection.
func WriteConnectionRefusedReply(conn net.Conn, atyp byte) {
	_, _ = newZeroAddrReply(txsocks5.RepConnectionRefused, atyp).WriteTo(conn)
}

// WriteSuccessReply writes a SOCKS5 success reply using localAddr as the
// bound address.
func WriteSuccessReply(conn net.Conn, localAddr net.Addr) error {
	a, addr, port, err := txsocks5.ParseAddress(localAddr.String())
	if err != nil {
		return fmt.Errorf("parse local address %q: %w", localAddr.String(), err)
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(conn); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}

func newZeroAddrReply(rep, atyp byte) *txsocks5.Reply {
	if atyp == txsocks5.ATYPIPv6 {
		return txsocks5.NewReply(rep, txsocks5.ATYPIPv6, []byte(net.IPv6zero), []byte{0x00, 0x00})
	}
	return txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
}

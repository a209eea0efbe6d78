package chathub

import "errors"

var ErrConnectionClosed = errors.New("chat connection closed")

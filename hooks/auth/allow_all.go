// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package auth

import (
	"bytes"

	mqtt "github.com/mochi-mqtt/conduit"
	"github.com/mochi-mqtt/conduit/packets"
)

// AllowOptions narrows what the allow-all hook grants.
type AllowOptions struct {
	ReadOnly bool `yaml:"read_only" json:"read_only"` // deny publishes while still admitting subscribers
}

// AllowHook admits every connecting client. Unless configured read-only it also
// grants every topic check.
type AllowHook struct {
	mqtt.HookBase
	config *AllowOptions
}

// ID returns the ID of the hook.
func (h *AllowHook) ID() string {
	return "allow-all-auth"
}

// Provides indicates which hook methods this hook provides.
func (h *AllowHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnACLCheck,
	}, []byte{b})
}

// Init takes an optional *AllowOptions.
func (h *AllowHook) Init(config any) error {
	if _, ok := config.(*AllowOptions); !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}

	if config == nil {
		config = new(AllowOptions)
	}

	h.config = config.(*AllowOptions)
	return nil
}

// OnConnectAuthenticate accepts every client.
func (h *AllowHook) OnConnectAuthenticate(cl *mqtt.Client, details mqtt.ConnectDetails) mqtt.Authorization {
	return mqtt.Authorization{Code: packets.CodeConnectionAccepted}
}

// OnACLCheck allows reads always, and writes unless the hook is read-only.
func (h *AllowHook) OnACLCheck(cl *mqtt.Client, topic string, write bool) bool {
	return !write || h.config == nil || !h.config.ReadOnly
}

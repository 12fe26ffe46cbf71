package lthread

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

// Config maps each role to its CPU allocation policy.
type Config map[string]RoleConfig

// Validate checks that every listed CPU is in cores and belongs to at most one role.
func (c Config) Validate(cores []int) error {
	usable := map[int]bool{}
	for _, id := range cores {
		usable[id] = true
	}

	roles := make([]string, 0, len(c))
	for role := range c {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	errs := []error{}
	owner := map[int]string{}
	for _, role := range roles {
		rc := c[role]
		for _, id := range rc.CPUs {
			if !usable[id] {
				errs = append(errs, fmt.Errorf("role %s: CPU %d is not usable", role, id))
			}
			if prev, ok := owner[id]; ok {
				errs = append(errs, fmt.Errorf("role %s: CPU %d already belongs to %s", role, id, prev))
			}
			owner[id] = role
		}
		for socket, n := range rc.PerSocket {
			if socket < 0 || n < 0 {
				errs = append(errs, fmt.Errorf("role %s: bad socket limit %d=%d", role, socket, n))
			}
		}
	}
	return multierr.Combine(errs...)
}

// RoleConfig is the CPU allocation policy of one role.
// Either CPUs reserves specific CPUs for the role, or PerSocket limits how many CPUs the role may take on
// each NUMA socket.
//
// In JSON, CPUs is written as an array such as [2,3], and PerSocket as an object such as {"0":2,"1":2}.
type RoleConfig struct {
	CPUs      []int
	PerSocket map[int]int
}

// Count returns the number of CPUs the role may take.
func (rc RoleConfig) Count() int {
	n := len(rc.CPUs)
	for _, m := range rc.PerSocket {
		n += m
	}
	return n
}

func (rc RoleConfig) limitOn(socket int) (n int, ok bool) {
	n, ok = rc.PerSocket[socket]
	return
}

// MarshalJSON implements json.Marshaler interface.
func (rc RoleConfig) MarshalJSON() ([]byte, error) {
	if len(rc.PerSocket) > 0 && len(rc.CPUs) == 0 {
		return json.Marshal(rc.PerSocket)
	}
	if rc.CPUs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rc.CPUs)
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (rc *RoleConfig) UnmarshalJSON(j []byte) error {
	*rc = RoleConfig{}
	switch trimmed := bytes.TrimSpace(j); {
	case bytes.HasPrefix(trimmed, []byte("[")):
		return json.Unmarshal(trimmed, &rc.CPUs)
	case bytes.HasPrefix(trimmed, []byte("{")):
		return json.Unmarshal(trimmed, &rc.PerSocket)
	default:
		return fmt.Errorf("role config must be a CPU list or a socket=>count object, not %s", trimmed)
	}
}

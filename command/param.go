package command

import (
	"context"
	"strconv"
	"strings"
)

type ParamType int

const (
	// String accepts any word.
	String ParamType = iota
	Int
	UInt
	Float
	// ID is a bare numeric platform id.
	ID
	// User is a user mention or id.
	User
	// Role is a role mention, id, or name known to the guild.
	Role
	// TextChannel is a channel mention or id.
	TextChannel
)

func (t ParamType) String() string {
	switch t {
	case Int:
		return "Int"
	case UInt:
		return "UInt"
	case Float:
		return "Float"
	case ID:
		return "ID"
	case User:
		return "User"
	case Role:
		return "Role"
	case TextChannel:
		return "TextChannel"
	default:
		return "String"
	}
}

// RoleFinder resolves role names that are not mentions or ids.
type RoleFinder interface {
	FindRole(ctx context.Context, guildID uint64, token string) (uint64, bool, error)
}

// Param is one argument of an invocation.
type Param struct {
	raw  string
	role uint64
}

func NewParam(raw string) Param {
	return Param{raw: raw}
}

func (p Param) String() string { return p.raw }

func (p Param) Int() (int64, bool) {
	v, err := strconv.ParseInt(p.raw, 10, 64)
	return v, err == nil
}

func (p Param) UInt() (uint64, bool) {
	v, err := strconv.ParseUint(p.raw, 10, 64)
	return v, err == nil
}

func (p Param) Float() (float64, bool) {
	v, err := strconv.ParseFloat(p.raw, 64)
	return v, err == nil
}

// UserID parses <@id>, <@!id> or a bare id.
func (p Param) UserID() (uint64, bool) {
	if inner, ok := unwrap(p.raw, "<@", ">"); ok {
		return parseID(strings.TrimPrefix(inner, "!"))
	}
	return parseID(p.raw)
}

// ChannelID parses <#id> or a bare id.
func (p Param) ChannelID() (uint64, bool) {
	if inner, ok := unwrap(p.raw, "<#", ">"); ok {
		return parseID(inner)
	}
	return parseID(p.raw)
}

// RoleID parses <@&id> or a bare id, or returns the id the role name was
// resolved to during validation.
func (p Param) RoleID() (uint64, bool) {
	if p.role != 0 {
		return p.role, true
	}
	if inner, ok := unwrap(p.raw, "<@&", ">"); ok {
		return parseID(inner)
	}
	return parseID(p.raw)
}

// Is reports whether p is syntactically a value of type t. Role names are
// not checked here; see Resolve.
func (p Param) Is(t ParamType) bool {
	var ok bool
	switch t {
	case String:
		ok = true
	case Int:
		_, ok = p.Int()
	case UInt:
		_, ok = p.UInt()
	case Float:
		_, ok = p.Float()
	case ID:
		_, ok = parseID(p.raw)
	case User:
		_, ok = p.UserID()
	case Role:
		_, ok = p.RoleID()
	case TextChannel:
		_, ok = p.ChannelID()
	}
	return ok
}

// resolve checks p against t, asking roles about role names in guildID.
func (p *Param) resolve(ctx context.Context, t ParamType, guildID uint64, roles RoleFinder) (bool, error) {
	if p.Is(t) {
		return true, nil
	}
	if t != Role || roles == nil || guildID == 0 {
		return false, nil
	}

	id, ok, err := roles.FindRole(ctx, guildID, strings.TrimPrefix(p.raw, "@"))
	if err != nil || !ok {
		return false, err
	}
	p.role = id
	return true, nil
}

func unwrap(s, prefix, suffix string) (string, bool) {
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix) && len(s) > len(prefix)+len(suffix) {
		return s[len(prefix) : len(s)-len(suffix)], true
	}
	return "", false
}

func parseID(s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil && v != 0
}

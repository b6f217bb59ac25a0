package dataflow

import (
	"fmt"
	"strings"
)

// Identifier kinds. Each is a distinct type so a NodeID can never be passed
// where an EdgeID or a port name is expected.
type (
	// NodeID identifies a node within a store.
	NodeID string
	// EdgeID identifies an edge. Derive it with EdgeIDFor.
	EdgeID string
	// InputName names an input port, unique within its node.
	InputName string
	// OutputName names an output port, unique within its node.
	OutputName string
	// TypeName names a registered node type.
	TypeName string
	// ValueType is an informational tag describing what a port carries.
	ValueType string
)

// reservedChars may not appear in node ids or port names because they
// delimit the parts of an EdgeID.
const reservedChars = "/>"

func validateIdentifier(kind, s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty %s", ErrInvalidID, kind)
	case strings.TrimSpace(s) != s:
		return fmt.Errorf("%w: %s %q has surrounding whitespace", ErrInvalidID, kind, s)
	case strings.ContainsAny(s, reservedChars):
		return fmt.Errorf("%w: %s %q contains one of %q", ErrInvalidID, kind, s, reservedChars)
	}
	return nil
}

// ParseNodeID validates s as a node id.
func ParseNodeID(s string) (NodeID, error) {
	if err := validateIdentifier("node id", s); err != nil {
		return "", err
	}
	return NodeID(s), nil
}

// MustParseNodeID is like ParseNodeID but panics on invalid input.
// Use it for compile-time constants only.
func MustParseNodeID(s string) NodeID {
	id, err := ParseNodeID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseInputName validates s as an input port name.
func ParseInputName(s string) (InputName, error) {
	if err := validateIdentifier("input name", s); err != nil {
		return "", err
	}
	return InputName(s), nil
}

// ParseOutputName validates s as an output port name.
func ParseOutputName(s string) (OutputName, error) {
	if err := validateIdentifier("output name", s); err != nil {
		return "", err
	}
	return OutputName(s), nil
}

// ParseTypeName validates s as a node type name. Type names may contain
// any character except surrounding whitespace.
func ParseTypeName(s string) (TypeName, error) {
	if s == "" || strings.TrimSpace(s) != s {
		return "", fmt.Errorf("%w: type name %q", ErrInvalidID, s)
	}
	return TypeName(s), nil
}

// EdgeIDFor derives the id of the edge connecting an output to an input.
// The same four parts always produce the same id, which makes edge
// creation idempotent.
func EdgeIDFor(source NodeID, output OutputName, target NodeID, input InputName) EdgeID {
	return EdgeID(string(source) + "/" + string(output) + "->" + string(target) + "/" + string(input))
}

// Parts splits an edge id produced by EdgeIDFor. ok is false for ids that
// were not produced by EdgeIDFor.
func (id EdgeID) Parts() (source NodeID, output OutputName, target NodeID, input InputName, ok bool) {
	src, tgt, found := strings.Cut(string(id), "->")
	if !found {
		return "", "", "", "", false
	}
	srcNode, srcOut, found := strings.Cut(src, "/")
	if !found {
		return "", "", "", "", false
	}
	tgtNode, tgtIn, found := strings.Cut(tgt, "/")
	if !found {
		return "", "", "", "", false
	}
	return NodeID(srcNode), OutputName(srcOut), NodeID(tgtNode), InputName(tgtIn), true
}

func (id NodeID) String() string { return string(id) }
func (id EdgeID) String() string { return string(id) }
func (n TypeName) String() string { return string(n) }
func (n InputName) String() string { return string(n) }
func (n OutputName) String() string { return string(n) }

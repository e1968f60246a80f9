package server

import (
	"context"
	"testing"

	"github.com/meshrpc/meshrpc/call"
)

func echoUnary(ctx context.Context, req any) (any, error) { return req, nil }

func TestRegistryRejectsDuplicateMethod(t *testing.T) {
	r := NewRegistry()
	svc := ServiceRegistration{
		Name: "Echo",
		Methods: []MethodEntry{
			{Method: "Echo", Kind: call.Unary, NewRequest: func() any { return new(string) }, Unary: echoUnary},
			{Method: "Echo", Kind: call.Unary, NewRequest: func() any { return new(string) }, Unary: echoUnary},
		},
	}
	if err := r.Register(svc); err == nil {
		t.Fatal("expected error for duplicate method name")
	}
}

func TestRegistryRejectsDuplicateService(t *testing.T) {
	r := NewRegistry()
	svc := ServiceRegistration{Name: "Echo", Methods: []MethodEntry{
		{Method: "Echo", Kind: call.Unary, NewRequest: func() any { return new(string) }, Unary: echoUnary},
	}}
	if err := r.Register(svc); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(svc); err == nil {
		t.Fatal("expected error re-registering the same service name")
	}
}

func TestRegistryRejectsShapeMismatch(t *testing.T) {
	r := NewRegistry()
	svc := ServiceRegistration{Name: "Echo", Methods: []MethodEntry{
		{Method: "Echo", Kind: call.Unary, NewRequest: func() any { return new(string) }},
	}}
	if err := r.Register(svc); err == nil {
		t.Fatal("expected error for unary method with no unary handler")
	}
}

func TestRegistryFlattensSubContracts(t *testing.T) {
	r := NewRegistry()
	parent := ServiceRegistration{Name: "Parent", Methods: []MethodEntry{
		{Method: "M", Kind: call.Unary, NewRequest: func() any { return new(string) }, Unary: echoUnary},
	}}
	sub := ServiceRegistration{Name: "Sub", Methods: []MethodEntry{
		{Method: "N", Kind: call.Unary, NewRequest: func() any { return new(string) }, Unary: echoUnary},
	}}
	if err := r.Register(parent, sub); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := r.Lookup("Parent", "M"); !ok {
		t.Fatal("expected Parent/M to be registered")
	}
	if _, ok := r.Lookup("Sub", "N"); !ok {
		t.Fatal("expected Sub/N to be registered")
	}
}

func TestRegistryRejectsParentSubContractNameCollision(t *testing.T) {
	r := NewRegistry()
	parent := ServiceRegistration{Name: "Dup", Methods: []MethodEntry{
		{Method: "M", Kind: call.Unary, NewRequest: func() any { return new(string) }, Unary: echoUnary},
	}}
	sub := ServiceRegistration{Name: "Dup", Methods: []MethodEntry{
		{Method: "N", Kind: call.Unary, NewRequest: func() any { return new(string) }, Unary: echoUnary},
	}}
	if err := r.Register(parent, sub); err == nil {
		t.Fatal("expected error when a sub-contract's name collides with the parent")
	}
}

func TestRegistryLookupMiss(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("NoSvc", "NoMethod"); ok {
		t.Fatal("expected lookup miss")
	}
}

package grpc

import (
	"testing"

	"google.golang.org/protobuf/reflect/protoreflect"
)

func TestGetProtoDescriptorsAndFindMethod(t *testing.T) {
	const protoSrc = `
		syntax = "proto3";
		package demo;
		service Greeter {
			rpc SayHello(HelloRequest) returns (HelloReply) {}
		}
		message HelloRequest { string name = 1; }
		message HelloReply { string message = 1; }
	`

	files := map[string]string{"demo.proto": protoSrc}
	fds, err := getProtoDescriptors(files)
	if err != nil {
		t.Fatalf("getProtoDescriptors returned error: %v", err)
	}
	if len(fds) != 2 {
		t.Fatalf("expected demo.proto and oracle.proto, got %d files", len(fds))
	}
	if _, ok := files[OracleProtoFile]; ok {
		t.Fatal("caller's map was modified")
	}

	fd, method, err := FindMethod(fds, "SayHello")
	if err != nil {
		t.Fatalf("FindMethod returned error: %v", err)
	}
	if string(fd.Package()) != "demo" {
		t.Fatalf("unexpected package: %s", fd.Package())
	}
	if string(method.Parent().Name()) != "Greeter" {
		t.Fatalf("unexpected service name: %s", method.Parent().Name())
	}
}

func TestFindMethod_NotFound(t *testing.T) {
	fds, err := getProtoDescriptors(nil)
	if err != nil {
		t.Fatalf("getProtoDescriptors returned error: %v", err)
	}
	if _, _, err := FindMethod(fds, "Unknown"); err == nil {
		t.Fatal("expected error for missing method")
	}
}

func TestGetProtoDescriptors_InvalidSource(t *testing.T) {
	files := map[string]string{"bad.proto": "syntax = \"proto2\"; message X {"}
	if _, err := getProtoDescriptors(files); err == nil {
		t.Fatal("expected compilation error for invalid proto")
	}
}

func TestOracleService(t *testing.T) {
	svc, err := oracleService()
	if err != nil {
		t.Fatalf("oracleService: %v", err)
	}
	if svc.FullName() != "oracle.v1.OracleQuery" {
		t.Fatalf("service = %s", svc.FullName())
	}
	for _, name := range []string{"GetTask", "GetGenerations", "GetValidations", "GetBestResponse", "GetFee", "GetEscrowBalance", "IsRegistered"} {
		if svc.Methods().ByName(protoreflect.Name(name)) == nil {
			t.Fatalf("method %s missing", name)
		}
	}
}

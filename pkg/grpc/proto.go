package grpc

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"slices"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"go.uber.org/zap"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// OracleProtoFile is the file name the query service proto is compiled under.
const OracleProtoFile = "oracle.proto"

// OracleProto contains the text of oracle.proto, which describes the
// read-only OracleQuery service. It is compiled at runtime alongside any
// caller-provided proto sources.
//
//go:embed oracle.proto
var OracleProto string

// FindMethod searches the given compiled proto files for a method with the
// provided simple method name (as declared in the .proto). It iterates over all
// services in all files and returns the file descriptor and method descriptor
// for the first match.
func FindMethod(files linker.Files, methodName string) (protoreflect.FileDescriptor, protoreflect.MethodDescriptor, error) {
	for _, file := range files {
		for i := 0; i < file.Services().Len(); i++ {
			service := file.Services().Get(i)
			method := service.Methods().ByName(protoreflect.Name(methodName))
			if method != nil {
				return file, method, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("method %s not found in provided proto files", methodName)
}

// getProtoDescriptors compiles the provided proto sources (filename → content)
// together with the embedded oracle.proto. Standard imports are available.
func getProtoDescriptors(protoFiles map[string]string) (linker.Files, error) {
	sources := make(map[string]string, len(protoFiles)+1)
	maps.Copy(sources, protoFiles)
	sources[OracleProtoFile] = OracleProto

	accessor := protocompile.SourceAccessorFromMap(sources)
	r := protocompile.WithStandardImports(&protocompile.SourceResolver{Accessor: accessor})
	compiler := protocompile.Compiler{
		Resolver:       r,
		SourceInfoMode: protocompile.SourceInfoStandard,
	}
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	slices.Sort(names)
	fds, err := compiler.Compile(context.Background(), names...)
	if err != nil || fds == nil {
		zap.L().Error("failed to compile proto files", zap.Error(err))
		return nil, fmt.Errorf("failed to compile proto files: %w", err)
	}
	return fds, nil
}

// oracleService returns the compiled OracleQuery service descriptor.
func oracleService() (protoreflect.ServiceDescriptor, error) {
	files, err := getProtoDescriptors(nil)
	if err != nil {
		return nil, err
	}
	file := files.FindFileByPath(OracleProtoFile)
	if file == nil {
		return nil, fmt.Errorf("%s not compiled", OracleProtoFile)
	}
	svc := file.Services().ByName("OracleQuery")
	if svc == nil {
		return nil, fmt.Errorf("OracleQuery service missing from %s", OracleProtoFile)
	}
	return svc, nil
}

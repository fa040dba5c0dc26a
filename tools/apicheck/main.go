// apicheck verifies that the client package still exports the full public
// surface callers depend on. It type-checks the package and resolves every
// entry in the surface manifest, so renames and signature-breaking removals
// fail CI instead of surfacing in downstream builds.
package main

import (
	"flag"
	"fmt"
	"go/types"
	"os"
	"strings"

	"golang.org/x/tools/go/packages"
)

type surfaceEntry struct {
	kind   string // "type", "func", "const", "var", "method"
	symbol string // "Client" or "Client.Connect"
}

// requiredSurface is the exported API contract of the client package.
var requiredSurface = []surfaceEntry{
	{"type", "Client"},
	{"func", "NewClient"},
	{"method", "Client.Connect"},
	{"method", "Client.Login"},
	{"method", "Client.SendRequest"},
	{"method", "Client.ReceiveAndDispatch"},
	{"method", "Client.WaitForReply"},
	{"method", "Client.WaitAll"},
	{"method", "Client.GetReply"},
	{"method", "Client.Cancel"},
	{"method", "Client.Shutdown"},
	{"method", "Client.Close"},
	{"method", "Client.Connected"},
	{"method", "Client.State"},
	{"method", "Client.PendingRequests"},
	{"method", "Client.SetConnectTimeout"},
	{"method", "Client.SetCommandTimeout"},
	{"method", "Client.SetTLSConfig"},
	{"method", "Client.SetLogger"},

	{"type", "Request"},
	{"method", "Request.Tag"},
	{"method", "Request.Command"},
	{"method", "Request.Arguments"},
	{"method", "Request.Synchronous"},
	{"method", "Request.Done"},
	{"method", "Request.Replies"},
	{"type", "ReplyHandler"},

	{"type", "Sentence"},
	{"method", "Sentence.Kind"},
	{"method", "Sentence.Tag"},
	{"method", "Sentence.Attribute"},
	{"method", "Sentence.Has"},
	{"method", "Sentence.AttributeNames"},
	{"method", "Sentence.DeviceMessage"},
	{"type", "Kind"},
	{"const", "KindDone"},
	{"const", "KindRow"},
	{"const", "KindTrap"},
	{"const", "KindFatal"},

	{"type", "State"},
	{"const", "StateDisconnected"},
	{"const", "StateConnecting"},
	{"const", "StateAuthenticating"},
	{"const", "StateReady"},
	{"const", "StateClosed"},

	{"type", "Error"},
	{"func", "NewError"},
	{"func", "HasErrorCode"},
	{"const", "CommandError"},
	{"const", "ConnectionError"},
	{"const", "ConnectionRefusedError"},
	{"const", "DisconnectedError"},
	{"const", "FatalError"},
	{"const", "HandlerError"},
	{"const", "ProtocolError"},
	{"const", "TimeoutError"},

	{"type", "RunConfig"},
	{"func", "Run"},
	{"const", "DefaultPort"},
	{"const", "DefaultTLSPort"},
	{"const", "DefaultConnectTimeout"},
	{"const", "DefaultCommandTimeout"},
}

func entryExists(scope *types.Scope, entry surfaceEntry) bool {
	switch entry.kind {
	case "type", "func", "const", "var":
		object := scope.Lookup(entry.symbol)
		if object == nil || !object.Exported() {
			return false
		}
		switch entry.kind {
		case "type":
			_, ok := object.(*types.TypeName)
			return ok
		case "func":
			_, ok := object.(*types.Func)
			return ok
		case "const":
			_, ok := object.(*types.Const)
			return ok
		default:
			_, ok := object.(*types.Var)
			return ok
		}
	case "method":
		receiver, method, found := strings.Cut(entry.symbol, ".")
		if !found {
			return false
		}
		object := scope.Lookup(receiver)
		typeName, ok := object.(*types.TypeName)
		if !ok {
			return false
		}
		methodSet := types.NewMethodSet(types.NewPointer(typeName.Type()))
		for index := 0; index < methodSet.Len(); index++ {
			if methodSet.At(index).Obj().Name() == method {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func main() {
	pattern := flag.String("package", "./ros", "package pattern to inspect")
	flag.Parse()

	config := &packages.Config{Mode: packages.NeedName | packages.NeedTypes | packages.NeedTypesInfo}
	loaded, err := packages.Load(config, *pattern)
	if err != nil {
		fmt.Printf("package load failed: %v\n", err)
		os.Exit(1)
	}
	if packages.PrintErrors(loaded) > 0 {
		os.Exit(1)
	}
	if len(loaded) != 1 {
		fmt.Printf("expected exactly one package for %s, got %d\n", *pattern, len(loaded))
		os.Exit(1)
	}
	scope := loaded[0].Types.Scope()

	missing := []string{}
	for _, entry := range requiredSurface {
		if !entryExists(scope, entry) {
			missing = append(missing, fmt.Sprintf("%s %s", entry.kind, entry.symbol))
		}
	}

	fmt.Printf("SURFACE_ENTRIES=%d\n", len(requiredSurface))
	fmt.Printf("MISSING_SYMBOLS=%d\n", len(missing))
	for _, item := range missing {
		fmt.Printf("MISSING %s\n", item)
	}
	if len(missing) > 0 {
		os.Exit(1)
	}
}

package bridge

import (
	"fmt"
	"runtime"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/encoding"
	"github.com/chazu/objcbridge/objcrt"
)

// Block literal flags.
const (
	blockIsGlobal     = 1 << 28
	blockHasSignature = 1 << 30
)

var blockLiteral = ctype.StructOf("Block_literal", []ctype.Field{
	{Name: "isa", Type: ctype.ClassPtr},
	{Name: "flags", Type: ctype.Int},
	{Name: "reserved", Type: ctype.Int},
	{Name: "invoke", Type: ctype.VoidPtr},
	{Name: "descriptor", Type: ctype.VoidPtr},
})

// The copy and dispose helpers are absent: global blocks have none.
var blockDescriptor = ctype.StructOf("Block_descriptor", []ctype.Field{
	{Name: "reserved", Type: ctype.ULong},
	{Name: "size", Type: ctype.ULong},
	{Name: "signature", Type: ctype.CString},
})

// BlockFunc implements a block. args are converted like message results:
// objects arrive as proxies owned by the function. An object result must be
// a proxy, a *Block or nil.
type BlockFunc func(args ...any) (any, error)

// Block is a Go function exposed to the runtime as a global block, an
// object of class __NSGlobalBlock__. The runtime never copies or disposes
// global blocks, so the literal and its callback are never freed.
type Block struct {
	obj      *Object
	invoke   objcrt.Address
	sig      *ctype.Func
	encoding string
}

// NewBlock wraps fn as a block taking args and returning ret. The FFI must
// implement objcrt.Callbacks.
func (b *Bridge) NewBlock(ret *ctype.Type, args []*ctype.Type, fn BlockFunc) (*Block, error) {
	return b.newBlock(ret, args, "", fn)
}

// NewBlockEncoded is NewBlock with the signature given as a block type
// encoding such as "v@?@q", whose first argument is the block itself. The
// encoding is recorded in the block's descriptor.
func (b *Bridge) NewBlockEncoded(enc string, fn BlockFunc) (*Block, error) {
	rawRet, rawArgs, err := b.decoder.DecodeMethodSignature(enc)
	if err != nil {
		return nil, err
	}
	if len(rawArgs) == 0 {
		return nil, fmt.Errorf("%w: block signature %q has no block argument", ErrSignature, enc)
	}
	if id, ok := encoding.Unqualified(rawArgs[0]).(encoding.ID); !ok || !id.Block {
		return nil, fmt.Errorf("%w: block signature %q starts with %s", ErrSignature, enc, rawArgs[0].Encode())
	}
	ret, err := ConvertType(rawRet)
	if err != nil {
		return nil, fmt.Errorf("block return type: %w", err)
	}
	args := make([]*ctype.Type, len(rawArgs)-1)
	for i, a := range rawArgs[1:] {
		if args[i], err = ConvertType(a); err != nil {
			return nil, fmt.Errorf("block argument %d: %w", i, err)
		}
	}
	return b.newBlock(ret, args, enc, fn)
}

func (b *Bridge) newBlock(ret *ctype.Type, args []*ctype.Type, enc string, fn BlockFunc) (*Block, error) {
	cb, ok := b.ffi.(objcrt.Callbacks)
	if !ok {
		return nil, fmt.Errorf("block: %w", ErrNoCallbacks)
	}
	isa := b.rt.LookUpClass("__NSGlobalBlock__")
	if isa == 0 {
		return nil, fmt.Errorf("block class __NSGlobalBlock__: %w", ErrNotFound)
	}
	sig, err := ctype.NewFunc(ret, append([]*ctype.Type{ctype.VoidPtr}, args...))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTypeMismatch, err)
	}
	invoke, err := cb.NewCallback(sig, func(raw []any) (any, error) {
		return b.runBlock(sig, fn, raw[1:])
	})
	if err != nil {
		return nil, err
	}

	literal, err := b.layoutBlock(cb, isa, invoke, enc)
	if err != nil {
		return nil, err
	}
	obj, err := b.ObjectAt(literal, true)
	if err != nil {
		return nil, err
	}
	log.Debugf("block %s created at %s", sig, literal)
	return &Block{obj: obj, invoke: invoke, sig: sig, encoding: enc}, nil
}

// layoutBlock allocates and fills in the literal and its descriptor.
func (b *Bridge) layoutBlock(cb objcrt.Callbacks, isa, invoke objcrt.Address, enc string) (objcrt.Address, error) {
	m := b.arch.Model
	litSize, err := blockLiteral.Size(m)
	if err != nil {
		return 0, err
	}
	litOff, err := blockLiteral.Offsets(m)
	if err != nil {
		return 0, err
	}
	descSize, err := blockDescriptor.Size(m)
	if err != nil {
		return 0, err
	}
	descOff, err := blockDescriptor.Offsets(m)
	if err != nil {
		return 0, err
	}

	flags := int64(blockIsGlobal)
	var sigAddr objcrt.Address
	if enc != "" {
		flags |= blockHasSignature
		text := append([]byte(enc), 0)
		if sigAddr, err = cb.Alloc(len(text)); err != nil {
			return 0, err
		}
		if err := b.ffi.Store(sigAddr, ctype.ArrayOf(ctype.Char, len(text)), text); err != nil {
			return 0, err
		}
	}

	desc, err := cb.Alloc(descSize)
	if err != nil {
		return 0, err
	}
	literal, err := cb.Alloc(litSize)
	if err != nil {
		return 0, err
	}
	stores := []struct {
		addr objcrt.Address
		t    *ctype.Type
		v    any
	}{
		{desc + objcrt.Address(descOff[1]), ctype.ULong, uint64(litSize)},
		{desc + objcrt.Address(descOff[2]), ctype.CString, sigAddr},
		{literal + objcrt.Address(litOff[0]), ctype.ClassPtr, isa},
		{literal + objcrt.Address(litOff[1]), ctype.Int, flags},
		{literal + objcrt.Address(litOff[3]), ctype.VoidPtr, invoke},
		{literal + objcrt.Address(litOff[4]), ctype.VoidPtr, desc},
	}
	for _, s := range stores {
		if err := b.ffi.Store(s.addr, s.t, s.v); err != nil {
			return 0, fmt.Errorf("block layout: %w", err)
		}
	}
	return literal, nil
}

// runBlock adapts a foreign invocation to fn.
func (b *Bridge) runBlock(sig *ctype.Func, fn BlockFunc, raw []any) (any, error) {
	args := make([]any, len(raw))
	for i, a := range raw {
		v, err := b.Unwrap(objcrt.Value{Type: sig.Params[i+1], Data: a}, true)
		if err != nil {
			return nil, fmt.Errorf("block argument %d: %w", i, err)
		}
		args[i] = v
	}
	res, err := fn(args...)
	if err != nil {
		return nil, err
	}
	if sig.Return.Kind() == ctype.KindVoid || !sig.Return.IsObject() {
		return res, nil
	}
	switch r := res.(type) {
	case nil:
		return objcrt.Address(0), nil
	case *Object:
		return r.addr, nil
	case *Block:
		return r.obj.addr, nil
	}
	return nil, fmt.Errorf("%w: block returned %T for %s", ErrTypeMismatch, res, sig.Return)
}

// Object returns the proxy of the block literal.
func (bl *Block) Object() *Object { return bl.obj }

// Address returns the address of the block literal.
func (bl *Block) Address() objcrt.Address { return bl.obj.addr }

// Signature returns the invoke function's signature, whose first parameter
// is the block itself.
func (bl *Block) Signature() *ctype.Func { return bl.sig }

// TypeEncoding returns the encoding recorded in the descriptor, or "".
func (bl *Block) TypeEncoding() string { return bl.encoding }

// Call invokes the block through its literal, as foreign code would.
func (bl *Block) Call(args ...any) (any, error) {
	b := bl.obj.b
	params := bl.sig.Params[1:]
	if len(args) != len(params) {
		return nil, fmt.Errorf("%w: %d arguments for block %s", ErrArity, len(args), bl.sig)
	}
	marshaled, temps, err := b.marshalArgs(args, params)
	defer releaseAll(temps)
	if err != nil {
		return nil, err
	}
	callArgs := make([]any, 0, len(bl.sig.Params))
	callArgs = append(callArgs, bl.obj.addr)
	for i, a := range marshaled {
		v, err := objcrt.Canonical(params[i], a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w: %w", i, ErrTypeMismatch, err)
		}
		callArgs = append(callArgs, v)
	}
	v, err := b.ffi.Call(bl.invoke, bl.sig, callArgs)
	runtime.KeepAlive(bl)
	if err != nil {
		return nil, err
	}
	return b.Unwrap(v, true)
}

func (bl *Block) String() string {
	return fmt.Sprintf("<Block %s at %s>", bl.sig, bl.obj.addr)
}

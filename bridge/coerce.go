package bridge

import (
	"fmt"
	"reflect"

	"github.com/chazu/objcbridge/ctype"
	"github.com/chazu/objcbridge/objcrt"
)

// Coerce converts a native Go value to a foreign object. Proxies are
// returned unchanged, after checking that they are instances of cls; a
// *Block stands for the proxy of its literal.
//
// Without a class, or with NSObject, the Go type decides: string becomes an
// NSString, []byte an NSData, a map with struct{} values an NSSet, any other
// map an NSDictionary, slices and arrays an NSArray, and numbers and bools
// an NSNumber. With a more specific class the value is converted to that
// class, which must descend from one of those Foundation classes.
func (b *Bridge) Coerce(v any, cls *Object) (*Object, error) {
	o, _, err := b.coerce(v, cls)
	return o, err
}

// coerce is Coerce that also reports whether a new handle was taken on the
// result, which the caller must release.
func (b *Bridge) coerce(v any, cls *Object) (*Object, bool, error) {
	var target objcrt.Address
	if cls != nil {
		if err := cls.live(); err != nil {
			return nil, false, err
		}
		if !cls.kind.IsClass() {
			return nil, false, fmt.Errorf("coerce to %s: %w", cls, ErrTypeMismatch)
		}
		target = cls.addr
	}

	if bl, ok := v.(*Block); ok {
		v = bl.obj
	}
	if o, ok := v.(*Object); ok {
		if err := o.live(); err != nil {
			return nil, false, err
		}
		if target != 0 && target != b.known.NSObject && !b.inheritsFrom(b.rt.ObjectClass(o.addr), target) {
			return nil, false, fmt.Errorf("%s is not an instance of %s: %w", o, cls, ErrTypeMismatch)
		}
		return o, false, nil
	}

	if target == 0 || target == b.known.NSObject {
		o, err := b.coerceByValue(v)
		return o, err == nil, err
	}

	var (
		o   *Object
		err error
	)
	switch {
	case b.inheritsFrom(target, b.known.NSString):
		s, ok := v.(string)
		if !ok {
			return nil, false, b.cannotCoerce(v, cls)
		}
		o, err = b.toString(s, target)
	case b.inheritsFrom(target, b.known.NSData):
		data, ok := v.([]byte)
		if !ok {
			return nil, false, b.cannotCoerce(v, cls)
		}
		o, err = b.toData(data, target)
	case b.inheritsFrom(target, b.known.NSArray):
		o, err = b.toArray(v, target)
	case b.inheritsFrom(target, b.known.NSDictionary):
		o, err = b.toDictionary(v, target)
	case b.inheritsFrom(target, b.known.NSSet):
		o, err = b.toSet(v, target)
	case b.inheritsFrom(target, b.known.NSNumber):
		o, err = b.toNumber(v, target)
	default:
		return nil, false, b.cannotCoerce(v, cls)
	}
	return o, err == nil, err
}

func (b *Bridge) coerceByValue(v any) (*Object, error) {
	switch x := v.(type) {
	case string:
		return b.toString(x, 0)
	case []byte:
		return b.toData(x, 0)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return b.toNumber(x, 0)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Elem() == emptyStructType {
			return b.toSet(v, 0)
		}
		return b.toDictionary(v, 0)
	case reflect.Slice, reflect.Array:
		return b.toArray(v, 0)
	}
	return nil, b.cannotCoerce(v, nil)
}

var emptyStructType = reflect.TypeOf(struct{}{})

func (b *Bridge) cannotCoerce(v any, cls *Object) error {
	if cls == nil {
		return fmt.Errorf("cannot convert %T to an object: %w", v, ErrTypeMismatch)
	}
	return fmt.Errorf("cannot convert %T to %s: %w", v, cls.Name(), ErrTypeMismatch)
}

// ---------------------------------------------------------------------------
// Converters
// ---------------------------------------------------------------------------

// ToString creates an NSString, or an instance of cls, from s.
func (b *Bridge) ToString(s string, cls *Object) (*Object, error) {
	return b.toString(s, classAddr(cls))
}

// ToData creates an NSData, or an instance of cls, from data.
func (b *Bridge) ToData(data []byte, cls *Object) (*Object, error) {
	return b.toData(data, classAddr(cls))
}

// ToArray creates an NSArray, or an instance of cls, from a slice or array.
// Elements are coerced with Coerce.
func (b *Bridge) ToArray(seq any, cls *Object) (*Object, error) {
	return b.toArray(seq, classAddr(cls))
}

// ToSet creates an NSSet, or an instance of cls, from a map with struct{}
// values or from a slice.
func (b *Bridge) ToSet(set any, cls *Object) (*Object, error) {
	return b.toSet(set, classAddr(cls))
}

// ToDictionary creates an NSDictionary, or an instance of cls, from a map.
func (b *Bridge) ToDictionary(m any, cls *Object) (*Object, error) {
	return b.toDictionary(m, classAddr(cls))
}

// ToNumber creates an NSNumber from a Go number or bool.
func (b *Bridge) ToNumber(n any) (*Object, error) {
	return b.toNumber(n, 0)
}

func classAddr(cls *Object) objcrt.Address {
	if cls == nil {
		return 0
	}
	return cls.addr
}

func (b *Bridge) factory(target, fallback objcrt.Address, fallbackName string) (objcrt.Address, error) {
	if target != 0 {
		return target, nil
	}
	if fallback == 0 {
		return 0, fmt.Errorf("class %s: %w", fallbackName, ErrNotFound)
	}
	return fallback, nil
}

// create sends a class factory message with a fixed signature and wraps the
// returned object.
func (b *Bridge) create(cls objcrt.Address, sel string, argTypes []*ctype.Type, args ...any) (*Object, error) {
	s := b.Selector(sel)
	v, err := b.Send(cls, s, args, ctype.ID, argTypes)
	if err != nil {
		return nil, err
	}
	addr, _ := v.Data.(objcrt.Address)
	if addr == 0 {
		return nil, fmt.Errorf("%s returned nil: %w", sel, ErrNilAddress)
	}
	return b.ObjectAt(addr, shouldRetainResult(sel))
}

func (b *Bridge) toString(s string, target objcrt.Address) (*Object, error) {
	cls, err := b.factory(target, b.known.NSString, "NSString")
	if err != nil {
		return nil, err
	}
	return b.create(cls, "stringWithUTF8String:", []*ctype.Type{ctype.CString}, s)
}

func (b *Bridge) toData(data []byte, target objcrt.Address) (*Object, error) {
	cls, err := b.factory(target, b.known.NSData, "NSData")
	if err != nil {
		return nil, err
	}
	return b.create(cls, "dataWithBytes:length:",
		[]*ctype.Type{ctype.VoidPtr, ctype.ULong}, data, uint64(len(data)))
}

var idArray = ctype.PointerTo(ctype.ID)

func (b *Bridge) toArray(seq any, target objcrt.Address) (*Object, error) {
	cls, err := b.factory(target, b.known.NSArray, "NSArray")
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(seq)
	if k := rv.Kind(); k != reflect.Slice && k != reflect.Array {
		return nil, fmt.Errorf("cannot convert %T to an array: %w", seq, ErrTypeMismatch)
	}
	elems, temps, err := b.coerceElems(rv.Len(), rv.Index)
	defer releaseAll(temps)
	if err != nil {
		return nil, err
	}
	return b.create(cls, "arrayWithObjects:count:",
		[]*ctype.Type{idArray, ctype.ULong}, elems, uint64(len(elems)))
}

func (b *Bridge) toSet(set any, target objcrt.Address) (*Object, error) {
	cls, err := b.factory(target, b.known.NSSet, "NSSet")
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(set)
	var (
		elems []objcrt.Address
		temps []*Object
	)
	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		elems, temps, err = b.coerceElems(len(keys), func(i int) reflect.Value { return keys[i] })
	case reflect.Slice, reflect.Array:
		elems, temps, err = b.coerceElems(rv.Len(), rv.Index)
	default:
		return nil, fmt.Errorf("cannot convert %T to a set: %w", set, ErrTypeMismatch)
	}
	defer releaseAll(temps)
	if err != nil {
		return nil, err
	}
	return b.create(cls, "setWithObjects:count:",
		[]*ctype.Type{idArray, ctype.ULong}, elems, uint64(len(elems)))
}

func (b *Bridge) toDictionary(m any, target objcrt.Address) (*Object, error) {
	cls, err := b.factory(target, b.known.NSDictionary, "NSDictionary")
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("cannot convert %T to a dictionary: %w", m, ErrTypeMismatch)
	}
	keys := rv.MapKeys()
	keyAddrs, keyTemps, err := b.coerceElems(len(keys), func(i int) reflect.Value { return keys[i] })
	defer releaseAll(keyTemps)
	if err != nil {
		return nil, err
	}
	valAddrs, valTemps, err := b.coerceElems(len(keys), func(i int) reflect.Value { return rv.MapIndex(keys[i]) })
	defer releaseAll(valTemps)
	if err != nil {
		return nil, err
	}
	return b.create(cls, "dictionaryWithObjects:forKeys:count:",
		[]*ctype.Type{idArray, idArray, ctype.ULong}, valAddrs, keyAddrs, uint64(len(keys)))
}

func (b *Bridge) coerceElems(n int, at func(int) reflect.Value) (addrs []objcrt.Address, temps []*Object, err error) {
	addrs = make([]objcrt.Address, n)
	for i := 0; i < n; i++ {
		var v any
		if ev := at(i); ev.IsValid() && ev.CanInterface() {
			v = ev.Interface()
		}
		o, owned, err := b.coerce(v, nil)
		if err != nil {
			return nil, temps, fmt.Errorf("element %d: %w", i, err)
		}
		if owned {
			temps = append(temps, o)
		}
		addrs[i] = o.addr
	}
	return addrs, temps, nil
}

func (b *Bridge) toNumber(n any, target objcrt.Address) (*Object, error) {
	cls, err := b.factory(target, b.known.NSNumber, "NSNumber")
	if err != nil {
		return nil, err
	}
	switch x := n.(type) {
	case bool:
		return b.create(cls, "numberWithBool:", []*ctype.Type{b.arch.BOOL()}, x)
	case float32, float64:
		return b.create(cls, "numberWithDouble:", []*ctype.Type{ctype.Double}, x)
	case uint, uint8, uint16, uint32, uint64:
		return b.create(cls, "numberWithUnsignedLongLong:", []*ctype.Type{ctype.ULongLong}, x)
	case int, int8, int16, int32, int64:
		return b.create(cls, "numberWithLongLong:", []*ctype.Type{ctype.LongLong}, x)
	}
	return nil, fmt.Errorf("cannot convert %T to a number: %w", n, ErrTypeMismatch)
}

package objctest

import (
	"fmt"
	"reflect"
)

// Dictionary is the payload of an NSDictionary instance.
type Dictionary struct {
	Keys   []Address
	Values []Address
}

func installFoundation(rt *Runtime) {
	root := rt.DefineClass("NSObject", "")
	rt.DefineClass("Protocol", "NSObject")
	installNSObject(rt, root)

	str := rt.DefineClass("NSString", "NSObject")
	rt.AddClassMethod(str, "stringWithUTF8String:", "@24@0:8r*16", func(c *Call) (any, error) {
		return c.RT.NewObject(c.Self, c.RT.argString(c.Args[0])), nil
	})
	rt.AddMethod(str, "UTF8String", "r*16@0:8", func(c *Call) (any, error) {
		s, _ := c.RT.Payload(c.Self).(string)
		return c.RT.NewCString(s), nil
	})
	rt.AddMethod(str, "length", "Q16@0:8", func(c *Call) (any, error) {
		s, _ := c.RT.Payload(c.Self).(string)
		return uint64(len(s)), nil
	})
	rt.DefineClass("NSMutableString", "NSString")

	data := rt.DefineClass("NSData", "NSObject")
	rt.AddClassMethod(data, "dataWithBytes:length:", "@32@0:8r^v16Q24", func(c *Call) (any, error) {
		buf := c.RT.argBytes(c.Args[0])
		n, _ := c.Args[1].(uint64)
		if int(n) > len(buf) {
			return nil, fmt.Errorf("objctest: %d bytes requested from a buffer of %d", n, len(buf))
		}
		return c.RT.NewObject(c.Self, append([]byte{}, buf[:n]...)), nil
	})
	rt.AddMethod(data, "bytes", "r^v16@0:8", func(c *Call) (any, error) {
		b, _ := c.RT.Payload(c.Self).([]byte)
		return c.RT.NewBuffer(b), nil
	})
	rt.AddMethod(data, "length", "Q16@0:8", func(c *Call) (any, error) {
		b, _ := c.RT.Payload(c.Self).([]byte)
		return uint64(len(b)), nil
	})

	array := rt.DefineClass("NSArray", "NSObject")
	rt.AddClassMethod(array, "arrayWithObjects:count:", "@32@0:8r^@16Q24", func(c *Call) (any, error) {
		elems, err := c.RT.argObjects(c.Args[0], c.Args[1])
		if err != nil {
			return nil, err
		}
		return c.RT.NewObject(c.Self, elems), nil
	})
	rt.AddMethod(array, "count", "Q16@0:8", func(c *Call) (any, error) {
		elems, _ := c.RT.Payload(c.Self).([]Address)
		return uint64(len(elems)), nil
	})
	rt.AddMethod(array, "objectAtIndex:", "@24@0:8Q16", func(c *Call) (any, error) {
		elems, _ := c.RT.Payload(c.Self).([]Address)
		i, _ := c.Args[0].(uint64)
		if i >= uint64(len(elems)) {
			return nil, fmt.Errorf("objctest: index %d beyond bounds [0 .. %d]", i, len(elems))
		}
		return elems[i], nil
	})
	rt.DefineClass("NSMutableArray", "NSArray")

	set := rt.DefineClass("NSSet", "NSObject")
	rt.AddClassMethod(set, "setWithObjects:count:", "@32@0:8r^@16Q24", func(c *Call) (any, error) {
		elems, err := c.RT.argObjects(c.Args[0], c.Args[1])
		if err != nil {
			return nil, err
		}
		var unique []Address
		for _, e := range elems {
			if c.RT.indexOf(unique, e) < 0 {
				unique = append(unique, e)
			}
		}
		return c.RT.NewObject(c.Self, unique), nil
	})
	rt.AddMethod(set, "count", "Q16@0:8", func(c *Call) (any, error) {
		elems, _ := c.RT.Payload(c.Self).([]Address)
		return uint64(len(elems)), nil
	})
	rt.AddMethod(set, "allObjects", "@16@0:8", func(c *Call) (any, error) {
		elems, _ := c.RT.Payload(c.Self).([]Address)
		return c.RT.newArray(elems), nil
	})

	dict := rt.DefineClass("NSDictionary", "NSObject")
	rt.AddClassMethod(dict, "dictionaryWithObjects:forKeys:count:", "@40@0:8r^@16r^@24Q32", func(c *Call) (any, error) {
		vals, err := c.RT.argObjects(c.Args[0], c.Args[2])
		if err != nil {
			return nil, err
		}
		keys, err := c.RT.argObjects(c.Args[1], c.Args[2])
		if err != nil {
			return nil, err
		}
		d := &Dictionary{}
		for i, k := range keys {
			if j := c.RT.indexOf(d.Keys, k); j >= 0 {
				d.Values[j] = vals[i]
				continue
			}
			d.Keys = append(d.Keys, k)
			d.Values = append(d.Values, vals[i])
		}
		return c.RT.NewObject(c.Self, d), nil
	})
	rt.AddMethod(dict, "count", "Q16@0:8", func(c *Call) (any, error) {
		d, _ := c.RT.Payload(c.Self).(*Dictionary)
		if d == nil {
			return uint64(0), nil
		}
		return uint64(len(d.Keys)), nil
	})
	rt.AddMethod(dict, "allKeys", "@16@0:8", func(c *Call) (any, error) {
		d, _ := c.RT.Payload(c.Self).(*Dictionary)
		if d == nil {
			return c.RT.newArray(nil), nil
		}
		return c.RT.newArray(d.Keys), nil
	})
	rt.AddMethod(dict, "objectForKey:", "@24@0:8@16", func(c *Call) (any, error) {
		d, _ := c.RT.Payload(c.Self).(*Dictionary)
		key, _ := c.Args[0].(Address)
		if d == nil {
			return Address(0), nil
		}
		if i := c.RT.indexOf(d.Keys, key); i >= 0 {
			return d.Values[i], nil
		}
		return Address(0), nil
	})

	installNSNumber(rt)

	rt.DefineClass("NSBlock", "NSObject")
	rt.DefineClass("__NSGlobalBlock__", "NSBlock")
}

func installNSObject(rt *Runtime, root Address) {
	rt.AddClassMethod(root, "alloc", "@16@0:8", func(c *Call) (any, error) {
		return c.RT.NewObject(c.Self, nil), nil
	})
	rt.AddClassMethod(root, "new", "@16@0:8", func(c *Call) (any, error) {
		return c.RT.NewObject(c.Self, nil), nil
	})
	rt.AddClassMethod(root, "instancesRespondToSelector:", "B24@0:8:16", func(c *Call) (any, error) {
		sel, _ := c.Args[0].(Address)
		return c.RT.ClassRespondsToSelector(c.Self, sel), nil
	})
	rt.AddClassMethod(root, "isSubclassOfClass:", "B24@0:8#16", func(c *Call) (any, error) {
		other, _ := c.Args[0].(Address)
		return c.RT.inherits(c.Self, other), nil
	})
	rt.AddMethod(root, "init", "@16@0:8", func(c *Call) (any, error) {
		return c.Self, nil
	})
	rt.AddMethod(root, "class", "#16@0:8", func(c *Call) (any, error) {
		if c.RT.ObjectIsClass(c.Self) {
			return c.Self, nil
		}
		return c.RT.ObjectClass(c.Self), nil
	})
	rt.AddMethod(root, "respondsToSelector:", "B24@0:8:16", func(c *Call) (any, error) {
		sel, _ := c.Args[0].(Address)
		return c.RT.ClassRespondsToSelector(c.RT.ObjectClass(c.Self), sel), nil
	})
	rt.AddMethod(root, "isKindOfClass:", "B24@0:8#16", func(c *Call) (any, error) {
		other, _ := c.Args[0].(Address)
		return c.RT.inherits(c.RT.ObjectClass(c.Self), other), nil
	})
	rt.AddMethod(root, "conformsToProtocol:", "B24@0:8@16", func(c *Call) (any, error) {
		proto, _ := c.Args[0].(Address)
		cls := c.Self
		if !c.RT.ObjectIsClass(cls) {
			cls = c.RT.ObjectClass(cls)
		}
		return c.RT.Conforms(cls, proto), nil
	})
	rt.AddMethod(root, "description", "@16@0:8", func(c *Call) (any, error) {
		cls := c.RT.ObjectClass(c.Self)
		return c.RT.NewInstance("NSString", fmt.Sprintf("<%s: %s>", c.RT.ClassName(cls), c.Self)), nil
	})
}

func installNSNumber(rt *Runtime) {
	num := rt.DefineClass("NSNumber", "NSObject")
	factory := func(sel, types string) {
		rt.AddClassMethod(num, sel, types, func(c *Call) (any, error) {
			return c.RT.NewObject(c.Self, c.Args[0]), nil
		})
	}
	rt.AddClassMethod(num, "numberWithBool:", "@20@0:8B16", func(c *Call) (any, error) {
		// BOOL arrives as a signed char on some targets.
		on := c.Args[0] != false && c.Args[0] != int64(0) && c.Args[0] != uint64(0)
		return c.RT.NewObject(c.Self, on), nil
	})
	factory("numberWithDouble:", "@24@0:8d16")
	factory("numberWithLongLong:", "@24@0:8q16")
	factory("numberWithUnsignedLongLong:", "@24@0:8Q16")

	rt.AddMethod(num, "objCType", "r*16@0:8", func(c *Call) (any, error) {
		code := "q"
		switch c.RT.Payload(c.Self).(type) {
		case bool:
			code = "B"
		case float64:
			code = "d"
		case uint64:
			code = "Q"
		}
		return c.RT.NewCString(code), nil
	})
	rt.AddMethod(num, "boolValue", "B16@0:8", func(c *Call) (any, error) {
		switch v := c.RT.Payload(c.Self).(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case uint64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		}
		return false, nil
	})
	rt.AddMethod(num, "doubleValue", "d16@0:8", func(c *Call) (any, error) {
		switch v := c.RT.Payload(c.Self).(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case uint64:
			return float64(v), nil
		case bool:
			if v {
				return float64(1), nil
			}
		}
		return float64(0), nil
	})
	rt.AddMethod(num, "longLongValue", "q16@0:8", func(c *Call) (any, error) {
		switch v := c.RT.Payload(c.Self).(type) {
		case int64:
			return v, nil
		case uint64:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case bool:
			if v {
				return int64(1), nil
			}
		}
		return int64(0), nil
	})
	rt.AddMethod(num, "unsignedLongLongValue", "Q16@0:8", func(c *Call) (any, error) {
		switch v := c.RT.Payload(c.Self).(type) {
		case uint64:
			return v, nil
		case int64:
			return uint64(v), nil
		case float64:
			return uint64(v), nil
		case bool:
			if v {
				return uint64(1), nil
			}
		}
		return uint64(0), nil
	})
}

// ---------------------------------------------------------------------------
// Helpers for implementations
// ---------------------------------------------------------------------------

// Conforms reports whether cls conforms to proto through adoption by the
// class or a superclass, directly or through incorporated protocols.
func (rt *Runtime) Conforms(cls, proto Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for c := rt.classAddrs[cls]; c != nil; c = c.super {
		for _, p := range c.protocols {
			if protocolIncludes(p, proto) {
				return true
			}
		}
	}
	return false
}

func protocolIncludes(p *protocol, proto Address) bool {
	if p.addr == proto {
		return true
	}
	for _, q := range p.protocols {
		if protocolIncludes(q, proto) {
			return true
		}
	}
	return false
}

func (rt *Runtime) inherits(cls, ancestor Address) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for c := rt.classAddrs[cls]; c != nil; c = c.super {
		if c.addr == ancestor {
			return true
		}
	}
	return false
}

func (rt *Runtime) argString(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case Address:
		return rt.CString(v)
	}
	return ""
}

func (rt *Runtime) argBytes(arg any) []byte {
	switch v := arg.(type) {
	case []byte:
		return v
	case Address:
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return rt.buffers[v]
	}
	return nil
}

// argObjects reads a C array of object pointers and retains each element
// on behalf of the new collection.
func (rt *Runtime) argObjects(arg, count any) ([]Address, error) {
	n, _ := count.(uint64)
	elems, _ := arg.([]Address)
	if arg != nil && elems == nil {
		if a, ok := arg.(Address); !ok || a != 0 {
			return nil, fmt.Errorf("objctest: object array passed as %T", arg)
		}
	}
	if int(n) > len(elems) {
		return nil, fmt.Errorf("objctest: %d objects requested from an array of %d", n, len(elems))
	}
	out := append([]Address{}, elems[:n]...)
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, e := range out {
		if e == 0 {
			return nil, fmt.Errorf("objctest: nil object in collection")
		}
		if o := rt.objects[e]; o != nil {
			o.rc++
		}
	}
	return out, nil
}

func (rt *Runtime) newArray(elems []Address) Address {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, e := range elems {
		if o := rt.objects[e]; o != nil {
			o.rc++
		}
	}
	return rt.newObjectLocked(rt.classes["NSArray"], append([]Address{}, elems...))
}

// indexOf finds obj in elems by identity or by equal payload.
func (rt *Runtime) indexOf(elems []Address, obj Address) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	var want any
	if o := rt.objects[obj]; o != nil {
		want = o.payload
	}
	for i, e := range elems {
		if e == obj {
			return i
		}
		o := rt.objects[e]
		if o == nil || want == nil || o.payload == nil {
			continue
		}
		if reflect.TypeOf(want).Comparable() && reflect.TypeOf(o.payload) == reflect.TypeOf(want) && o.payload == want {
			return i
		}
	}
	return -1
}

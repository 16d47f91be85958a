package config

import (
	"errors"
	"net"
	"reflect"
)

type param interface {
	Validate() error
}

// Display carries frontend labelling for a parameter. It plays no part in
// validation.
type Display struct {
	Description string
	Name        string
	Group       string
}

type U16Param struct {
	Type    string
	Value   uint16
	Range   [2]uint16
	Display Display
}

type U64Param struct {
	Type    string
	Value   uint64
	Range   [2]uint64
	Display Display
}

type BoolParam struct {
	Type    string
	Value   bool
	Display Display
}

// StringParam holds free form text such as a port range spec. The consumer
// is responsible for parsing the content.
type StringParam struct {
	Type    string
	Value   string
	Display Display
}

type SelectParam struct {
	Type    string
	Value   string
	Range   []string
	Display Display
}

type IPV4Param struct {
	Type string
	// Stored as a string so it round trips through JSON untouched
	// Use GetValue for the parsed form
	Value   string
	Display Display
}

func (p U16Param) Validate() error {
	if p.Value >= p.Range[0] && p.Value <= p.Range[1] {
		return nil
	}
	return errors.New("U16 value out of range")
}

func (p U64Param) Validate() error {
	if p.Value >= p.Range[0] && p.Value <= p.Range[1] {
		return nil
	}
	return errors.New("U64 value out of range")
}

func (p BoolParam) Validate() error {
	return nil
}

func (p StringParam) Validate() error {
	return nil
}

func (p SelectParam) Validate() error {
	for _, s := range p.Range {
		if s == p.Value {
			return nil
		}
	}
	return errors.New("Select value not in list")
}

func (p IPV4Param) Validate() error {
	_, err := p.GetValue()
	return err
}

// GetValue parses the stored dotted quad form.
func (p *IPV4Param) GetValue() ([4]byte, error) {
	var buf [4]byte
	if ip := net.ParseIP(p.Value); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			copy(buf[:], ip4)
			return buf, nil
		}
	}
	return buf, errors.New("Invalid IPV4 address")
}

func MakeIPV4(value string, display Display) IPV4Param {
	return IPV4Param{"ipv4", value, display}
}
func MakeU16(value uint16, rng [2]uint16, display Display) U16Param {
	return U16Param{"u16", value, rng, display}
}
func MakeU64(value uint64, rng [2]uint64, display Display) U64Param {
	return U64Param{"u64", value, rng, display}
}
func MakeSelect(value string, rng []string, display Display) SelectParam {
	return SelectParam{"select", value, rng, display}
}
func MakeBool(value bool, display Display) BoolParam {
	return BoolParam{"bool", value, display}
}
func MakeString(value string, display Display) StringParam {
	return StringParam{"string", value, display}
}

func asStruct(c interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(c)
	// Pointers are accepted for convenience
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, errors.New("Config is not a struct")
	}
	return v, nil
}

// Validate checks every field of a config struct. Each field must be one of
// the param types above and hold an in range value.
func Validate(c interface{}) error {
	v, err := asStruct(c)
	if err != nil {
		return err
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		fieldName := t.Field(i).Name
		if !v.Field(i).CanInterface() {
			return errors.New(fieldName + " : Could not retrieve unexported field")
		}
		p, ok := v.Field(i).Interface().(param)
		if !ok {
			return errors.New(fieldName + " : Invalid struct field type")
		}
		if err := p.Validate(); err != nil {
			return errors.New(fieldName + " : " + err.Error())
		}
	}
	return nil
}

// ValidateConfigSet checks a struct whose fields are themselves config
// structs.
func ValidateConfigSet(c interface{}) error {
	v, err := asStruct(c)
	if err != nil {
		return err
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		fieldName := t.Field(i).Name
		if !v.Field(i).CanInterface() {
			return errors.New(fieldName + " : Could not retrieve unexported field")
		}
		if err := Validate(v.Field(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// CopyValue copies every param Value in c2 onto c1. c1 must be a pointer.
// Nothing is written unless every field passes the compatibility checks.
func CopyValue(c1 interface{}, c2 interface{}) error {
	p1 := reflect.ValueOf(c1)
	v2 := reflect.ValueOf(c2)

	if p1.Kind() != reflect.Ptr {
		return errors.New("Initial config must be pointer")
	}

	v1 := p1.Elem()
	// Pointers are accepted for convenience
	if v2.Kind() == reflect.Ptr {
		v2 = v2.Elem()
	}
	if err := validateCopy(v1, v2); err != nil {
		return err
	}
	performCopy(v1, v2)
	return nil
}

func validateCopy(v1 reflect.Value, v2 reflect.Value) error {
	if v1.Type() != v2.Type() {
		return errors.New("Configs must be same type")
	}
	if v1.Kind() != reflect.Struct {
		return errors.New("Configs must be struct")
	}
	t := v1.Type()
	for i := 0; i < t.NumField(); i++ {
		fieldName := t.Field(i).Name
		if t.Field(i).Type.Kind() != reflect.Struct {
			return errors.New(fieldName + " : must be struct")
		}
		if _, ok := t.Field(i).Type.FieldByName("Value"); !ok {
			return errors.New(fieldName + " : struct must contain Value field")
		}
		f1 := v1.Field(i)
		f2 := v2.Field(i)
		if !f1.FieldByName("Value").CanSet() {
			return errors.New(fieldName + " : struct Value field must be settable")
		}
		if f1.FieldByName("Value").Type() != f2.FieldByName("Value").Type() {
			return errors.New(fieldName + " : struct Value field must contain compatible types")
		}
	}
	return nil
}

func performCopy(v1 reflect.Value, v2 reflect.Value) {
	t := v1.Type()
	for i := 0; i < t.NumField(); i++ {
		v1.Field(i).FieldByName("Value").Set(v2.Field(i).FieldByName("Value"))
	}
}

// CopyValueSet copies param values between config sets, one named member
// config at a time. A nil fields slice copies all of them.
func CopyValueSet(c1 interface{}, c2 interface{}, fields []string) error {
	p1 := reflect.ValueOf(c1)
	v2 := reflect.ValueOf(c2)

	if p1.Kind() != reflect.Ptr {
		return errors.New("Initial config must be pointer")
	}

	v1 := p1.Elem()
	// Pointers are accepted for convenience
	if v2.Kind() == reflect.Ptr {
		v2 = v2.Elem()
	}

	if v1.Type() != v2.Type() {
		return errors.New("Configs must be same type")
	}
	if v1.Kind() != reflect.Struct {
		return errors.New("Configs must be struct")
	}

	// A nil slice means every field
	if fields == nil {
		t := v1.Type()
		for i := 0; i < t.NumField(); i++ {
			fields = append(fields, t.Field(i).Name)
		}
	}
	for _, fname := range fields {
		f1 := v1.FieldByName(fname)
		f2 := v2.FieldByName(fname)
		if !f1.IsValid() || !f2.IsValid() {
			return errors.New(fname + " : field not in struct")
		}
		if err := validateCopy(f1, f2); err != nil {
			return errors.New(fname + " : " + err.Error())
		}
	}
	for _, fname := range fields {
		performCopy(v1.FieldByName(fname), v2.FieldByName(fname))
	}
	return nil
}

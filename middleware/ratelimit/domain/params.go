package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	paramFieldSep = ","
	paramKVSep    = "="
)

type ParamType int

const (
	ParamFloat ParamType = iota
	ParamInt
	ParamDuration
	ParamString
)

func (t ParamType) String() string {
	switch t {
	case ParamFloat:
		return "float"
	case ParamInt:
		return "int"
	case ParamDuration:
		return "duration"
	case ParamString:
		return "string"
	default:
		return "unknown"
	}
}

// ParamItem é o par (tipo declarado, valor) de um parâmetro de estratégia.
type ParamItem struct {
	typ   ParamType
	value any
}

func FloatParam(v float64) ParamItem          { return ParamItem{typ: ParamFloat, value: v} }
func IntParam(v int) ParamItem                { return ParamItem{typ: ParamInt, value: v} }
func DurationParam(d time.Duration) ParamItem { return ParamItem{typ: ParamDuration, value: d} }
func StringParam(v string) ParamItem          { return ParamItem{typ: ParamString, value: v} }

func (p ParamItem) Type() ParamType { return p.typ }
func (p ParamItem) Value() any      { return p.value }

// parse converte raw para o tipo declarado de p.
func (p ParamItem) parse(raw string) (ParamItem, bool) {
	switch p.typ {
	case ParamFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, false
		}
		return FloatParam(f), true
	case ParamInt:
		i, err := strconv.Atoi(raw)
		if err != nil {
			return p, false
		}
		return IntParam(i), true
	case ParamDuration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return p, false
		}
		return DurationParam(d), true
	case ParamString:
		// vazio não substitui o default
		if raw == "" {
			return p, false
		}
		return StringParam(raw), true
	}
	return p, false
}

// ParamSet é o resultado imutável do merge entre os defaults declarados por
// uma estratégia e a string de parâmetros configurada.
type ParamSet struct {
	items     map[string]ParamItem
	malformed []string
}

// ParseParams interpreta raw no formato "key=value[,key=value...]".
//
// Toda chave declarada em defaults está presente no resultado. Chaves
// desconhecidas são ignoradas. Valores que não convertem para o tipo declarado
// mantêm o default e ficam listados em Malformed.
func ParseParams(raw string, defaults map[string]ParamItem) ParamSet {
	items := make(map[string]ParamItem, len(defaults))
	for k, v := range defaults {
		items[k] = v
	}

	bad := make(map[string]struct{})
	for _, field := range strings.Split(raw, paramFieldSep) {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		k, v, _ := strings.Cut(field, paramKVSep)
		k = strings.TrimSpace(k)
		def, known := defaults[k]
		if !known {
			continue
		}
		parsed, ok := def.parse(strings.TrimSpace(v))
		if !ok {
			items[k] = def
			bad[k] = struct{}{}
			continue
		}
		items[k] = parsed
		delete(bad, k)
	}

	var malformed []string
	for k := range bad {
		malformed = append(malformed, k)
	}
	sort.Strings(malformed)

	return ParamSet{items: items, malformed: malformed}
}

func (s ParamSet) Get(name string) (ParamItem, bool) {
	it, ok := s.items[name]
	return it, ok
}

func (s ParamSet) Len() int { return len(s.items) }

// Float aceita itens float ou int; outros tipos retornam 0.
func (s ParamSet) Float(name string) float64 {
	switch v := s.items[name].value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (s ParamSet) Int(name string) int {
	v, _ := s.items[name].value.(int)
	return v
}

func (s ParamSet) Duration(name string) time.Duration {
	v, _ := s.items[name].value.(time.Duration)
	return v
}

func (s ParamSet) String(name string) string {
	v, _ := s.items[name].value.(string)
	return v
}

// Malformed lista, em ordem, as chaves cujo valor configurado foi descartado.
func (s ParamSet) Malformed() []string {
	if len(s.malformed) == 0 {
		return nil
	}
	out := make([]string, len(s.malformed))
	copy(out, s.malformed)
	return out
}

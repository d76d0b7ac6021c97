package model

import "github.com/tidwall/gjson"

// Merge helpers. Each sets *dst from the payload field only when the field is
// present, and reports whether the stored value actually changed. Re-setting
// a field to its current value reports false, which is what makes duplicate
// push events produce empty change sets.

func setString(j gjson.Result, key string, dst *string) bool {
	v := j.Get(key)
	if !v.Exists() {
		return false
	}
	if s := v.String(); s != *dst {
		*dst = s
		return true
	}
	return false
}

func setInt(j gjson.Result, key string, dst *int) bool {
	v := j.Get(key)
	if !v.Exists() {
		return false
	}
	if n := int(v.Int()); n != *dst {
		*dst = n
		return true
	}
	return false
}

func setInt64(j gjson.Result, key string, dst *int64) bool {
	v := j.Get(key)
	if !v.Exists() {
		return false
	}
	if n := v.Int(); n != *dst {
		*dst = n
		return true
	}
	return false
}

func setBool(j gjson.Result, key string, dst *bool) bool {
	v := j.Get(key)
	if !v.Exists() {
		return false
	}
	if b := v.Bool(); b != *dst {
		*dst = b
		return true
	}
	return false
}

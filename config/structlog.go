package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/golang/glog"
)

type logMsg func(string, ...interface{})

var mapregex = "[%s]"

func logGeneral(v reflect.Value, prefix string) {
	logGeneralWithLogger(v, prefix, glog.Infof)
}

func logGeneralWithLogger(v reflect.Value, prefix string, logger logMsg) {
	switch v.Kind() {
	case reflect.Struct:
		logStructWithLogger(v, prefix, logger)
	case reflect.Map:
		logMapWithLogger(v, prefix, logger)
	default:
		logger("%s%v", prefix, v)
	}
}

func logStructWithLogger(v reflect.Value, prefix string, logger logMsg) {
	if v.Kind() != reflect.Struct {
		glog.Fatalf("logStruct called on type %s, whuch is not a struct!", v.Type().String())
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		fieldName := fieldNameByTag(t.Field(i))
		if allowedName(fieldName) {
			logGeneralWithLogger(v.Field(i), prefix+fieldName+fieldSeparator(v.Field(i)), logger)
		} else {
			logger("%s%s: <REDACTED>", prefix, fieldName)
		}
	}
}

func logMapWithLogger(v reflect.Value, prefix string, logger logMsg) {
	if v.Kind() != reflect.Map {
		glog.Fatalf("logMap called on type %s, whuch is not a map!", v.Type().String())
	}
	prefix = strings.TrimSuffix(prefix, ": ")
	for _, k := range v.MapKeys() {
		value := v.MapIndex(k)
		key := fmt.Sprintf(mapregex, fmt.Sprint(k))
		logGeneralWithLogger(value, prefix+key+fieldSeparator(value), logger)
	}
}

func fieldSeparator(v reflect.Value) string {
	if v.Kind() == reflect.Struct {
		return "."
	}
	return ": "
}

func fieldNameByTag(f reflect.StructField) string {
	if tag := f.Tag.Get("mapstructure"); tag != "" {
		return tag
	}
	return "((" + f.Name + "))"
}

func allowedName(name string) bool {
	return !strings.Contains(strings.ToLower(name), "password")
}

func reflectValueOf(cfg Configuration) reflect.Value {
	return reflect.ValueOf(cfg)
}

// Package rule 基于 go-playground/validator 的配置校验，标签名为 rule.
//
// 除内置规则外注册了：
//
//	sockpath  绝对路径且不超过 unix socket 路径上限
//	fileext   不带点、不含路径分隔符的扩展名
package rule

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// MaxSocketPathLen sockaddr_un.sun_path 可用的最大字节数.
const MaxSocketPathLen = 107

var (
	inst *validator.Validate
	once sync.Once
)

// initValidator 复用 gin 的 validator 引擎，不可用时新建.
func initValidator() {
	if engine := binding.Validator.Engine(); engine != nil {
		if v, ok := engine.(*validator.Validate); ok {
			inst = v
		}
	}

	if inst == nil {
		inst = validator.New()
	}

	inst.SetTagName("rule")
	inst.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}

		return name
	})

	_ = inst.RegisterValidation("sockpath", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return filepath.IsAbs(p) && len(p) <= MaxSocketPathLen
	})
	_ = inst.RegisterValidation("fileext", func(fl validator.FieldLevel) bool {
		ext := fl.Field().String()
		return ext != "" && !strings.HasPrefix(ext, ".") && !strings.ContainsAny(ext, `/\`)
	})
}

func lazyInit() {
	once.Do(initValidator)
}

// Engine 返回全局 *validator.Validate.
func Engine() *validator.Validate {
	lazyInit()

	return inst
}

// RegisterValidation 注册自定义规则.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	lazyInit()

	return inst.RegisterValidation(tag, fn, opts...)
}

// ValidationErrors 字段路径到可读错误信息，字段名取 mapstructure 标签.
type ValidationErrors map[string]string

// Error 按字段路径排序输出.
func (e ValidationErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}

	return strings.Join(parts, "; ")
}

// Errors 把 validator 的错误转换为 ValidationErrors，其他错误返回 nil.
func Errors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make(ValidationErrors, len(verrs))
	for _, fe := range verrs {
		// 去掉顶层结构体名.
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		out[field] = describe(fe)
	}

	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "sockpath":
		return fmt.Sprintf("must be an absolute path of at most %d bytes", MaxSocketPathLen)
	case "fileext":
		return "must be an extension without leading dot"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}

// ValidateStruct 校验结构体. 失败时返回 ValidationErrors.
func ValidateStruct(s any) error {
	lazyInit()

	if err := inst.Struct(s); err != nil {
		if verrs := Errors(err); verrs != nil {
			return verrs
		}

		return err
	}

	return nil
}

// ValidateVar 按规则校验单个值，例如 ValidateVar("/run/fsindex.sock", "sockpath").
func ValidateVar(field any, tag string) error {
	lazyInit()

	return inst.Var(field, tag)
}

// RegisterAlias 注册规则别名.
func RegisterAlias(alias, rules string) {
	lazyInit()

	inst.RegisterAlias(alias, rules)
}

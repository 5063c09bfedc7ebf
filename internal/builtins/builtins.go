// Package builtins links every builtin group into the runtime registry.
package builtins

import (
	_ "github.com/xirelogy/go-scm/internal/builtins/arith"
	_ "github.com/xirelogy/go-scm/internal/builtins/compare"
	_ "github.com/xirelogy/go-scm/internal/builtins/lists"
	_ "github.com/xirelogy/go-scm/internal/builtins/predicates"
	_ "github.com/xirelogy/go-scm/internal/builtins/system"
)

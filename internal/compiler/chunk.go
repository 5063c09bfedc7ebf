package compiler

import "github.com/xirelogy/go-scm/internal/bytecode"

type Form = bytecode.Form
type Module = bytecode.Module

package compiler

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kristofer/tater/pkg/gc"
	"github.com/kristofer/tater/pkg/value"
)

func compile(t *testing.T, src string) (*value.ObjFunction, bool) {
	t.Helper()
	heap := gc.NewHeap(zerolog.Nop())
	var errBuf bytes.Buffer
	c := New(heap, &errBuf)
	fn, ok := c.Compile(src)
	if !ok {
		t.Logf("compile errors:\n%s", errBuf.String())
	}
	return fn, ok
}

func TestCompilesArithmeticExpression(t *testing.T) {
	fn, ok := compile(t, "print 1 + 2 * 3;")
	if !ok {
		t.Fatal("expected successful compile")
	}
	if len(fn.Chunk.Code) == 0 {
		t.Fatal("expected emitted bytecode")
	}
	foundPrint := false
	for _, b := range fn.Chunk.Code {
		if value.OpCode(b) == value.OpPrint {
			foundPrint = true
		}
	}
	if !foundPrint {
		t.Error("expected OP_PRINT in compiled output")
	}
}

func TestCompilesVariableDeclarationAndGlobalOps(t *testing.T) {
	fn, ok := compile(t, "let x = 10; x = x + 1; print x;")
	if !ok {
		t.Fatal("expected successful compile")
	}
	var sawDefine, sawSetGlobal, sawGetGlobal bool
	for _, b := range fn.Chunk.Code {
		switch value.OpCode(b) {
		case value.OpDefineGlobal:
			sawDefine = true
		case value.OpSetGlobal:
			sawSetGlobal = true
		case value.OpGetGlobal:
			sawGetGlobal = true
		}
	}
	if !sawDefine || !sawSetGlobal || !sawGetGlobal {
		t.Errorf("expected define/set/get global opcodes, got code=%v", fn.Chunk.Code)
	}
}

func TestCompilesLocalsWithoutGlobalOps(t *testing.T) {
	fn, ok := compile(t, "{ let x = 1; let y = 2; print x + y; }")
	if !ok {
		t.Fatal("expected successful compile")
	}
	for _, b := range fn.Chunk.Code {
		if value.OpCode(b) == value.OpDefineGlobal {
			t.Error("block-scoped locals should not emit OP_DEFINE_GLOBAL")
		}
	}
}

func TestCompilesClosureCapturingUpvalue(t *testing.T) {
	fn, ok := compile(t, `
		fn outer() {
			let x = 1;
			fn inner() {
				return x;
			}
			return inner;
		}
	`)
	if !ok {
		t.Fatal("expected successful compile")
	}
	var sawClosure bool
	for _, b := range fn.Chunk.Code {
		if value.OpCode(b) == value.OpClosure {
			sawClosure = true
		}
	}
	if !sawClosure {
		t.Error("expected OP_CLOSURE for nested function")
	}
}

func TestCompilesIfElseWithJumps(t *testing.T) {
	fn, ok := compile(t, `
		if (1 < 2) {
			print "yes";
		} else {
			print "no";
		}
	`)
	if !ok {
		t.Fatal("expected successful compile")
	}
	var sawJump, sawJumpIfFalse bool
	for _, b := range fn.Chunk.Code {
		switch value.OpCode(b) {
		case value.OpJump:
			sawJump = true
		case value.OpJumpIfFalse:
			sawJumpIfFalse = true
		}
	}
	if !sawJump || !sawJumpIfFalse {
		t.Error("expected jump and jump-if-false for if/else")
	}
}

func TestCompilesWhileLoopWithBreakAndContinue(t *testing.T) {
	_, ok := compile(t, `
		let i = 0;
		while (i < 10) {
			i = i + 1;
			if (i == 5) { continue; }
			if (i == 8) { break; }
		}
	`)
	if !ok {
		t.Fatal("expected successful compile")
	}
}

func TestBreakOutsideLoopIsError(t *testing.T) {
	_, ok := compile(t, "break;")
	if ok {
		t.Fatal("expected compile error for break outside loop")
	}
}

func TestCompilesForLoop(t *testing.T) {
	_, ok := compile(t, `
		for (let i = 0; i < 3; i = i + 1) {
			print i;
		}
	`)
	if !ok {
		t.Fatal("expected successful compile")
	}
}

func TestCompilesTypeDeclarationWithInheritanceAndSuper(t *testing.T) {
	_, ok := compile(t, `
		type Animal {
			let name = "";
			speak() {
				print self.name;
			}
		}
		type Dog < Animal {
			speak() {
				super.speak();
				print "woof";
			}
		}
	`)
	if !ok {
		t.Fatal("expected successful compile")
	}
}

func TestSelfOutsideMethodIsError(t *testing.T) {
	_, ok := compile(t, "print self;")
	if ok {
		t.Fatal("expected compile error for self outside a method")
	}
}

func TestCompilesListAndMapLiteralsAndSubscript(t *testing.T) {
	fn, ok := compile(t, `
		let xs = [1, 2, 3];
		let m = {"a": 1};
		print xs[0];
		xs[0] = 9;
		xs[0] += 1;
	`)
	if !ok {
		t.Fatal("expected successful compile")
	}
	var sawNewList, sawNewMap, sawInvoke bool
	for _, b := range fn.Chunk.Code {
		switch value.OpCode(b) {
		case value.OpNewList:
			sawNewList = true
		case value.OpNewMap:
			sawNewMap = true
		case value.OpInvoke:
			sawInvoke = true
		}
	}
	if !sawNewList || !sawNewMap || !sawInvoke {
		t.Error("expected list/map literal opcodes and invoke-based subscript ops")
	}
}

func TestCompilesSwitchStatement(t *testing.T) {
	_, ok := compile(t, `
		let x = 2;
		switch (x) {
		case 1:
			print "one";
		case 2:
			print "two";
		default:
			print "other";
		}
	`)
	if !ok {
		t.Fatal("expected successful compile")
	}
}

func TestReturnFromTopLevelIsError(t *testing.T) {
	_, ok := compile(t, "return 1;")
	if ok {
		t.Fatal("expected compile error for return at top level")
	}
}

func TestAssertStatementCompiles(t *testing.T) {
	fn, ok := compile(t, `assert 1 == 1, "math is broken";`)
	if !ok {
		t.Fatal("expected successful compile")
	}
	found := false
	for _, b := range fn.Chunk.Code {
		if value.OpCode(b) == value.OpAssert {
			found = true
		}
	}
	if !found {
		t.Error("expected OP_ASSERT")
	}
}

func TestSyntaxErrorReportsAndSynchronizes(t *testing.T) {
	_, ok := compile(t, "let ; let y = 1;")
	if ok {
		t.Fatal("expected a compile error for malformed declaration")
	}
}

package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/tater/pkg/gc"
)

func run(t *testing.T, src string) (stdout, stderr string, code int) {
	t.Helper()
	heap := gc.NewHeap(zerolog.Nop())
	var out, errOut bytes.Buffer
	m := New(heap, &out, &errOut, zerolog.Nop())
	code = m.Interpret(src)
	return out.String(), errOut.String(), code
}

func TestArithmeticAndStringConcat(t *testing.T) {
	out, _, code := run(t, `print 1 + 2 * 3; print "a" + "b";`)
	require.Equalf(t, ExitOK, code, "exit code; stdout=%s", spew.Sdump(out))
	require.Equal(t, "7\nab\n", out)
}

func TestWhileLoop(t *testing.T) {
	out, _, code := run(t, `
		let i = 0;
		let sum = 0;
		while (i < 5) {
			sum = sum + i;
			i = i + 1;
		}
		print sum;
	`)
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if out != "10\n" {
		t.Errorf("output = %q, want %q", out, "10\n")
	}
}

func TestClosureCapturesVariable(t *testing.T) {
	out, _, code := run(t, `
		fn makeCounter() {
			let count = 0;
			fn increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		let counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if out != "1\n2\n3\n" {
		t.Errorf("output = %q, want %q", out, "1\n2\n3\n")
	}
}

func TestTypesInstancesAndInheritanceWithSuper(t *testing.T) {
	out, _, code := run(t, `
		type Animal {
			let name = "animal";
			init(name) {
				self.name = name;
			}
			speak() {
				print self.name + " makes a sound";
			}
		}
		type Dog < Animal {
			speak() {
				super.speak();
				print self.name + " barks";
			}
		}
		let d = Dog("Rex");
		d.speak();
	`)
	if code != ExitOK {
		t.Fatalf("exit code = %d, stderr empty? %v", code, out)
	}
	want := "Rex makes a sound\nRex barks\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestListsWithNegativeIndexing(t *testing.T) {
	out, _, code := run(t, `
		let xs = [1, 2, 3];
		print xs[-1];
		xs[0] = 10;
		print xs[0];
		xs.append(4);
		print xs.len();
	`)
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	want := "3\n10\n4\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestMapGetSetAndSubscript(t *testing.T) {
	out, _, code := run(t, `
		let m = {"a": 1, "b": 2};
		print m["a"];
		m["c"] = 3;
		print m.len();
	`)
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	want := "1\n3\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestExitBuiltinSetsProcessExitCode(t *testing.T) {
	_, _, code := run(t, `exit(2);`)
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestRuntimeTypeErrorMessage(t *testing.T) {
	out, errOut, code := run(t, `print 1 + "a";`)
	if code != ExitRuntimeError {
		t.Fatalf("exit code = %d, want %d (stdout=%q)", code, ExitRuntimeError, out)
	}
	if !strings.Contains(errOut, "operands must be two numbers or two strings") {
		t.Errorf("stderr = %q, want a type-error message", errOut)
	}
}

func TestSwitchStatementDispatch(t *testing.T) {
	out, _, code := run(t, `
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
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if out != "two\n" {
		t.Errorf("output = %q, want %q", out, "two\n")
	}
}

func TestBreakAndContinueInForLoop(t *testing.T) {
	out, _, code := run(t, `
		for (let i = 0; i < 10; i = i + 1) {
			if (i == 2) { continue; }
			if (i == 5) { break; }
			print i;
		}
	`)
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	want := "0\n1\n3\n4\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestAssertFailureIsRuntimeError(t *testing.T) {
	_, errOut, code := run(t, `assert 1 == 2, "nope";`)
	if code != ExitRuntimeError {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(errOut, "nope") {
		t.Errorf("stderr = %q, want message to contain assert text", errOut)
	}
}

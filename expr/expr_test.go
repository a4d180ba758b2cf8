package expr_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/brimdata/docpipe"
	"github.com/brimdata/docpipe/dperr"
	"github.com/brimdata/docpipe/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eval(t *testing.T, e, input string) (docpipe.Value, error) {
	t.Helper()
	if input == "" {
		input = "{}"
	}
	prog, err := expr.Parse(docpipe.MustParse(e), nil)
	if err != nil {
		return docpipe.Missing, err
	}
	return prog.Eval(expr.NewContext(), docpipe.MustParseDocument(input))
}

func testSuccessful(t *testing.T, e, input, expected string) {
	t.Helper()
	val, err := eval(t, e, input)
	require.NoError(t, err, "expression %s", e)
	want := docpipe.MustParse(expected)
	assert.Equal(t, want.Kind(), val.Kind(), "expression %s: got %s", e, val)
	assert.True(t, docpipe.Equal(want, val), "expression %s: want %s got %s", e, want, val)
}

func testError(t *testing.T, e, input string, code int) {
	t.Helper()
	_, err := eval(t, e, input)
	require.Error(t, err, "expression %s", e)
	assert.Equal(t, dperr.Code(code), dperr.CodeOf(err), "expression %s: %s", e, err)
}

func TestZip(t *testing.T) {
	testSuccessful(t, `{"$zip":{"inputs":[[1,2,3],["A","B"]]}}`, "", `[[1,"A"],[2,"B"]]`)
	testSuccessful(t, `{"$zip":{"inputs":[[1,2,3],["A","B"]],"useLongestLength":true}}`, "", `[[1,"A"],[2,"B"],[3,null]]`)
	testSuccessful(t, `{"$zip":{"inputs":[[1,2,3],["A"]],"useLongestLength":true,"defaults":[0,"Z"]}}`, "", `[[1,"A"],[2,"Z"],[3,"Z"]]`)
	testSuccessful(t, `{"$zip":{"inputs":["$a","$b"]}}`, `{"a":[1,2],"b":[[3],4]}`, `[[1,[3]],[2,4]]`)
	testSuccessful(t, `{"$zip":{"inputs":["$a",[1]]}}`, `{}`, `null`)
	testSuccessful(t, `{"$zip":{"inputs":[null,[1]]}}`, "", `null`)
	testSuccessful(t, `{"$zip":{"inputs":[[],[1]]}}`, "", `[]`)

	testError(t, `{"$zip":[[1]]}`, "", 34460)
	testError(t, `{"$zip":{"inputs":"$a"}}`, "", 34461)
	testError(t, `{"$zip":{"inputs":[[1]],"defaults":1,"useLongestLength":true}}`, "", 34462)
	testError(t, `{"$zip":{"inputs":[[1]],"useLongestLength":1}}`, "", 34463)
	testError(t, `{"$zip":{"inputs":[[1]],"foo":1}}`, "", 34464)
	testError(t, `{"$zip":{"inputs":[]}}`, "", 34465)
	testError(t, `{"$zip":{"inputs":[[1]],"defaults":[1]}}`, "", 34466)
	testError(t, `{"$zip":{"inputs":[[1],[2]],"defaults":[1],"useLongestLength":true}}`, "", 34467)
	testError(t, `{"$zip":{"inputs":[[1],"$a"]}}`, `{"a":5}`, 34468)
}

func TestZipShape(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := 1 + r.Intn(4)
		lengths := make([]int, n)
		inputs := make([]string, n)
		min, max := -1, 0
		for k := range inputs {
			lengths[k] = r.Intn(6)
			elems := make([]string, lengths[k])
			for j := range elems {
				elems[j] = fmt.Sprint(j)
			}
			inputs[k] = "[" + strings.Join(elems, ",") + "]"
			if min < 0 || lengths[k] < min {
				min = lengths[k]
			}
			if lengths[k] > max {
				max = lengths[k]
			}
		}
		spec := fmt.Sprintf(`{"$zip":{"inputs":[%s]}}`, strings.Join(inputs, ","))
		val, err := eval(t, spec, "")
		require.NoError(t, err)
		require.Len(t, val.Array(), min)

		spec = fmt.Sprintf(`{"$zip":{"inputs":[%s],"useLongestLength":true}}`, strings.Join(inputs, ","))
		val, err = eval(t, spec, "")
		require.NoError(t, err)
		rows := val.Array()
		require.Len(t, rows, max)
		for i, row := range rows {
			require.Len(t, row.Array(), n)
			for k, v := range row.Array() {
				if i >= lengths[k] {
					assert.Equal(t, docpipe.KindNull, v.Kind())
				} else {
					assert.True(t, docpipe.Equal(docpipe.NewInt32(int32(i)), v))
				}
			}
		}
	}
}

func TestSplit(t *testing.T) {
	testSuccessful(t, `{"$split":["abc abc cba abc","abc"]}`, "", `["", " ", " cba ", ""]`)
	testSuccessful(t, `{"$split":["a-b--c","-"]}`, "", `["a","b","","c"]`)
	testSuccessful(t, `{"$split":["héllo wörld","ö"]}`, "", `["héllo w","rld"]`)
	testSuccessful(t, `{"$split":["日本語日本","本"]}`, "", `["日","語日",""]`)
	testSuccessful(t, `{"$split":["$missing","-"]}`, "", `null`)
	testSuccessful(t, `{"$split":["a",null]}`, "", `null`)

	testError(t, `{"$split":[1,"-"]}`, "", 40085)
	testError(t, `{"$split":["a",1]}`, "", 40086)
	testError(t, `{"$split":["a",""]}`, "", 40087)
	testError(t, `{"$split":["a"]}`, "", 16020)
}

func randomString(r *rand.Rand, alphabet []rune, n int) string {
	out := make([]rune, n)
	for k := range out {
		out[k] = alphabet[r.Intn(len(alphabet))]
	}
	return string(out)
}

func TestSplitJoinRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	alphabets := [][]rune{
		[]rune("ab -"),
		[]rune("aé日本🙂"),
	}
	for _, alphabet := range alphabets {
		for trial := 0; trial < 300; trial++ {
			s := randomString(r, alphabet, r.Intn(20))
			sep := randomString(r, alphabet, 1+r.Intn(2))
			arg := docpipe.NewArray([]docpipe.Value{docpipe.NewString(s), docpipe.NewString(sep)})
			prog, err := expr.Parse(docpipe.NewDocumentValue(docpipe.D("$split", arg)), nil)
			require.NoError(t, err)
			val, err := prog.Eval(nil, nil)
			require.NoError(t, err)
			var parts []string
			for _, part := range val.Array() {
				parts = append(parts, part.Str())
			}
			require.Equal(t, s, strings.Join(parts, sep), "split(%q, %q)", s, sep)
		}
	}
}

func TestMultiply(t *testing.T) {
	testSuccessful(t, `{"$multiply":[{"$numberInt":"10"},null]}`, "", `null`)
	testSuccessful(t, `{"$multiply":[{"$numberInt":"10"},{"$numberDecimal":"2.55"}]}`, "", `{"$numberDecimal":"25.50"}`)
	testSuccessful(t, `{"$multiply":[2,"$missing",3]}`, "", `null`)
	// Operands after a null are not type checked.
	testSuccessful(t, `{"$multiply":[null,"a"]}`, "", `null`)
	testSuccessful(t, `{"$multiply":[65536,65536]}`, "", `{"$numberLong":"4294967296"}`)
	testSuccessful(t, `{"$multiply":[{"$numberLong":"4611686018427387904"},4]}`, "", `{"$numberDouble":"1.8446744073709552e+19"}`)
	testSuccessful(t, `{"$multiply":[]}`, "", `1`)
	testError(t, `{"$multiply":[2,"a"]}`, "", 14)
}

func TestMultiplyPromotionClosure(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for trial := 0; trial < 500; trial++ {
		x := docpipe.NewInt32(r.Int31() - r.Int31())
		y := docpipe.NewInt64(r.Int63() - r.Int63())
		arg := docpipe.NewArray([]docpipe.Value{x, y})
		prog, err := expr.Parse(docpipe.NewDocumentValue(docpipe.D("$multiply", arg)), nil)
		require.NoError(t, err)
		val, err := prog.Eval(nil, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, val.Kind(), docpipe.KindInt64)

		for _, nullish := range []docpipe.Value{docpipe.Null, docpipe.Missing} {
			for _, args := range [][]docpipe.Value{{x, nullish}, {nullish, y}} {
				prog, err := expr.Parse(docpipe.NewDocumentValue(docpipe.D("$multiply", docpipe.NewArray(args))), nil)
				require.NoError(t, err)
				val, err := prog.Eval(nil, nil)
				require.NoError(t, err)
				assert.Equal(t, docpipe.KindNull, val.Kind())
			}
		}
	}
}

func TestArithmetic(t *testing.T) {
	testSuccessful(t, `{"$add":[1,2,3.5]}`, "", `6.5`)
	testSuccessful(t, `{"$add":[{"$date":"2020-01-01T00:00:00Z"},1000]}`, "", `{"$date":"2020-01-01T00:00:01Z"}`)
	testSuccessful(t, `{"$subtract":["$a","$b"]}`, `{"a":10,"b":4}`, `6`)
	testSuccessful(t, `{"$divide":[1,4]}`, "", `0.25`)
	testSuccessful(t, `{"$mod":[-7,2]}`, "", `-1`)
	testSuccessful(t, `{"$abs":-3}`, "", `3`)
	testError(t, `{"$add":["a",1]}`, "", 16554)
	testError(t, `{"$add":[{"$date":"2020-01-01T00:00:00Z"},{"$date":"2020-01-01T00:00:00Z"}]}`, "", 16612)
	testError(t, `{"$subtract":["a",1]}`, "", 16556)
	testError(t, `{"$divide":[1,0]}`, "", 16608)
	testError(t, `{"$mod":[1,0]}`, "", 16610)
	testError(t, `{"$divide":[1,{"$numberDecimal":"0"}]}`, "", 16608)
	testError(t, `{"$divide":[5,{"$numberDecimal":"-0.00"}]}`, "", 16608)
	testError(t, `{"$mod":[7,{"$numberDecimal":"0"}]}`, "", 16610)
	testError(t, `{"$mod":[{"$numberDecimal":"7.5"},{"$numberDecimal":"-0E+3"}]}`, "", 16610)
	testError(t, `{"$abs":"x"}`, "", 28765)
}

func TestLogic(t *testing.T) {
	testSuccessful(t, `{"$and":[1,"$a"]}`, `{"a":0}`, `true`)
	testSuccessful(t, `{"$and":[true,null]}`, "", `false`)
	// Short-circuiting skips the failing operand.
	testSuccessful(t, `{"$and":[false,{"$divide":[1,0]}]}`, "", `false`)
	testSuccessful(t, `{"$or":[true,{"$divide":[1,0]}]}`, "", `true`)
	testSuccessful(t, `{"$or":[]}`, "", `false`)
	testSuccessful(t, `{"$not":[0]}`, "", `false`)
	testSuccessful(t, `{"$not":["$missing"]}`, "", `true`)
	testSuccessful(t, `{"$cond":[{"$gt":["$a",1]},"big","small"]}`, `{"a":2}`, `"big"`)
	testSuccessful(t, `{"$cond":{"if":false,"then":{"$divide":[1,0]},"else":"ok"}}`, "", `"ok"`)
	testSuccessful(t, `{"$ifNull":["$a","$b","dflt"]}`, `{"b":null}`, `"dflt"`)
	testSuccessful(t, `{"$ifNull":["$a","$b","dflt"]}`, `{"b":0}`, `0`)
	testSuccessful(t, `{"$ifNull":["$a",{"$divide":[1,0]}]}`, `{"a":false}`, `false`)
	testError(t, `{"$cond":{"then":1,"else":2}}`, "", 17080)
	testError(t, `{"$cond":{"if":1,"else":2}}`, "", 17081)
	testError(t, `{"$cond":{"if":1,"then":2}}`, "", 17082)
	testError(t, `{"$cond":{"if":1,"then":2,"else":3,"x":1}}`, "", 17083)
	testError(t, `{"$ifNull":["$a"]}`, "", 16020)
}

func TestComparisons(t *testing.T) {
	testSuccessful(t, `{"$eq":[1,1.0]}`, "", `true`)
	testSuccessful(t, `{"$lt":[null,0]}`, "", `true`)
	testSuccessful(t, `{"$gt":["a",99]}`, "", `true`)
	testSuccessful(t, `{"$cmp":[[1,2],[1]]}`, "", `1`)
	testSuccessful(t, `{"$in":[2,[1,2.0]]}`, "", `true`)
	testError(t, `{"$in":[2,3]}`, "", 40081)
}

func TestStrings(t *testing.T) {
	testSuccessful(t, `{"$concat":["a","b"]}`, "", `"ab"`)
	testSuccessful(t, `{"$concat":["a",null]}`, "", `null`)
	testSuccessful(t, `{"$toUpper":"aBé"}`, "", `"ABé"`)
	testSuccessful(t, `{"$toLower":5}`, "", `"5"`)
	testSuccessful(t, `{"$strLenCP":"日本"}`, "", `2`)
	testSuccessful(t, `{"$substrCP":["日本語",1,5]}`, "", `"本語"`)
	testError(t, `{"$concat":["a",1]}`, "", 16702)
	testError(t, `{"$strLenCP":1}`, "", 34471)
	testError(t, `{"$substrCP":["a",-1,1]}`, "", 34455)
	testError(t, `{"$toUpper":[[1]]}`, "", 16007)
}

func TestArrays(t *testing.T) {
	testSuccessful(t, `{"$size":"$a"}`, `{"a":[1,2]}`, `2`)
	testSuccessful(t, `{"$arrayElemAt":["$a",-1]}`, `{"a":[1,2]}`, `2`)
	testSuccessful(t, `{"$concatArrays":[[1],[2,3]]}`, "", `[1,2,3]`)
	testSuccessful(t, `{"$isArray":["$a"]}`, `{"a":1}`, `false`)
	testSuccessful(t, `"$a.b"`, `{"a":[{"b":1},{"c":2},{"b":3}]}`, `[1,3]`)
	testSuccessful(t, `["$a","$missing"]`, `{"a":1}`, `[1,null]`)
	testError(t, `{"$size":1}`, "", 17124)
	testError(t, `{"$arrayElemAt":[1,0]}`, "", 28689)
	testError(t, `{"$arrayElemAt":[[1],"x"]}`, "", 28690)
	testError(t, `{"$arrayElemAt":[[1],1.5]}`, "", 28691)
	testError(t, `{"$concatArrays":[[1],2]}`, "", 28664)
}

func TestTypeAndLiteral(t *testing.T) {
	testSuccessful(t, `{"$type":"$a"}`, `{"a":1.5}`, `"double"`)
	testSuccessful(t, `{"$type":"$a"}`, ``, `"missing"`)
	testSuccessful(t, `{"$literal":"$a"}`, `{"a":1}`, `"$a"`)
	testSuccessful(t, `{"x":"$a","y":"$missing"}`, `{"a":1}`, `{"x":1}`)
}

func TestParseErrors(t *testing.T) {
	testError(t, `{"$foo":1}`, "", 168)
	testError(t, `"$"`, "", 16872)
	testError(t, `"$a..b"`, "", 15998)
	testError(t, `{"a":1,"$b":2}`, "", 16410)
	testError(t, `{"a.b":1}`, "", 16412)
	testError(t, `{"$add":[1],"$sub":[1]}`, "", 15983)
	testError(t, `"$$x"`, "", 17276)
	testError(t, `{"$subtract":[1,2,3]}`, "", 16020)
}

func nested(op string, depth int) docpipe.Value {
	v := docpipe.NewInt32(1)
	for k := 0; k < depth; k++ {
		v = docpipe.NewDocumentValue(docpipe.D(op, docpipe.NewArray([]docpipe.Value{v, docpipe.NewInt32(1)})))
	}
	return v
}

func TestDeepNesting(t *testing.T) {
	prog, err := expr.Parse(nested("$add", 90), nil)
	require.NoError(t, err)
	val, err := prog.Eval(nil, nil)
	require.NoError(t, err)
	assert.True(t, docpipe.Equal(docpipe.NewInt32(91), val))

	_, err = expr.Parse(nested("$add", 90), &expr.ParseContext{MaxDepth: 50})
	require.Error(t, err)
	assert.Equal(t, dperr.ParseError, dperr.KindOf(err))

	prog, err = expr.Parse(nested("$and", 5000), &expr.ParseContext{MaxDepth: 20000})
	require.NoError(t, err)
	val, err = prog.Eval(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, docpipe.True, val)
}

func TestVariables(t *testing.T) {
	doc := docpipe.MustParseDocument(`{"a":{"b":2}}`)
	prog, err := expr.Parse(docpipe.MustParse(`{"$add":["$$ROOT.a.b","$$x"]}`), &expr.ParseContext{Vars: map[string]bool{"x": true}})
	require.NoError(t, err)
	val, err := prog.Eval(expr.NewContext().WithVar("x", docpipe.NewInt32(3)), doc)
	require.NoError(t, err)
	assert.True(t, docpipe.Equal(docpipe.NewInt32(5), val))

	_, err = prog.Eval(expr.NewContext(), doc)
	assert.Equal(t, dperr.Code(17276), dperr.CodeOf(err))

	deps := prog.Dependencies()
	assert.Equal(t, "a.b", deps.Paths.String())
	assert.Equal(t, []string{"x"}, deps.Vars)

	prog = expr.MustParse(`"$$REMOVE"`)
	val, err = prog.Eval(nil, doc)
	require.NoError(t, err)
	assert.True(t, val.IsMissing())

	ectx := expr.NewContext()
	ectx.Now = docpipe.NewDate(1000)
	val, err = expr.MustParse(`"$$NOW"`).Eval(ectx, doc)
	require.NoError(t, err)
	assert.Equal(t, docpipe.KindDate, val.Kind())

	assert.True(t, expr.MustParse(`"$$CURRENT"`).Dependencies().WholeDocument)
}

func TestMeta(t *testing.T) {
	prog := expr.MustParse(`{"$meta":"textScore"}`)
	assert.Equal(t, []string{"textScore"}, prog.Dependencies().Meta)
	assert.False(t, prog.Dependencies().WholeDocument)

	doc := docpipe.MustParseDocument(`{"a":1}`).WithMeta("textScore", docpipe.NewDouble(1.5))
	val, err := prog.Eval(nil, doc)
	require.NoError(t, err)
	assert.True(t, docpipe.Equal(docpipe.NewDouble(1.5), val))

	var warnings []string
	ectx := expr.NewContext()
	ectx.Warn = func(msg string) { warnings = append(warnings, msg) }
	val, err = prog.Eval(ectx, docpipe.MustParseDocument(`{"a":1}`))
	require.NoError(t, err)
	assert.True(t, val.IsMissing())
	assert.Len(t, warnings, 1)

	testError(t, `{"$meta":1}`, "", 17307)
	testError(t, `{"$meta":"nope"}`, "", 17308)
}

func TestDateFromString(t *testing.T) {
	testSuccessful(t, `{"$dateFromString":{"dateString":"2017-02-08T12:10:40.787Z"}}`, "", `{"$date":"2017-02-08T12:10:40.787Z"}`)
	testSuccessful(t, `{"$dateFromString":{"dateString":"2017-02-08 12:10:40"}}`, "", `{"$date":"2017-02-08T12:10:40Z"}`)
	testSuccessful(t, `{"$dateFromString":{"dateString":"08/02/2017","format":"%d/%m/%Y"}}`, "", `{"$date":"2017-02-08T00:00:00Z"}`)
	testSuccessful(t, `{"$dateFromString":{"dateString":"2017-02-08","timezone":"+02:00","format":"%Y-%m-%d"}}`, "", `{"$date":"2017-02-07T22:00:00Z"}`)
	testSuccessful(t, `{"$dateFromString":{"dateString":"$d","onNull":"none"}}`, "", `"none"`)
	testSuccessful(t, `{"$dateFromString":{"dateString":"garbage","onError":"bad"}}`, "", `"bad"`)
	testError(t, `{"$dateFromString":{"dateString":"garbage"}}`, "", 241)
	testError(t, `{"$dateFromString":{"dateString":"2017","format":"%Q"}}`, "", 18536)
	testError(t, `{"$dateFromString":{"dateString":"2017","timezone":"Mars/Olympus"}}`, "", 40485)
	testError(t, `{"$dateFromString":{"format":"%Y"}}`, "", 40542)
	testError(t, `{"$dateFromString":{"dateString":"2017","x":1}}`, "", 40541)
}

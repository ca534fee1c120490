package tasks

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"math/cmplx"
	"math/rand"
	"strconv"
	"strings"
)

// defaultPrimeMethod is the method isPrime falls back to when the
// request omits its own method param, set once at startup from
// PRIME_NUMBER_METHOD (§6.3).
var defaultPrimeMethod = "miller-rabin"

// SetDefaultPrimeMethod overrides the isPrime fallback method. Accepts
// the same names §6.3's PRIME_NUMBER_METHOD documents (TRIAL/SQRT select
// division, anything else selects Miller-Rabin), normalized to
// division/miller-rabin.
func SetDefaultPrimeMethod(method string) {
	switch strings.ToUpper(method) {
	case "TRIAL", "SQRT":
		defaultPrimeMethod = "division"
	case "":
		// leave the compiled-in default untouched
	default:
		defaultPrimeMethod = "miller-rabin"
	}
}

func init() {
	register("isprime", isPrime)
	register("factor", factor)
	register("pi", piDigits)
	register("matrixmul", matrixMul)
	register("mandelbrot", mandelbrot)
	register("fibonacci", fibonacci)
	register("reverse", reverse)
	register("toupper", toUpper)
	register("random", randomInts)
}

// isPrime answers /isprime?n=NUM[&method=division|miller-rabin].
func isPrime(params map[string]string) (string, error) {
	n, err := strconv.ParseInt(params["n"], 10, 64)
	if err != nil || n < 0 {
		return "", fmt.Errorf("n must be integer >= 0")
	}
	method := params["method"]
	if method == "" {
		method = defaultPrimeMethod
	}
	var isP bool
	switch method {
	case "division":
		isP = isPrimeDivision(n)
	case "miller-rabin":
		isP = isPrimeMillerRabin(uint64(n))
	default:
		return "", fmt.Errorf("method must be division or miller-rabin")
	}
	b, _ := json.Marshal(map[string]any{"n": n, "is_prime": isP, "method": method})
	return string(b), nil
}

func isPrimeDivision(n int64) bool {
	if n < 2 {
		return false
	}
	if n == 2 || n == 3 {
		return true
	}
	if n%2 == 0 {
		return false
	}
	limit := int64(math.Sqrt(float64(n)))
	for d := int64(3); d <= limit; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// isPrimeMillerRabin is a deterministic Miller-Rabin test, correct for
// all uint64 values under the witness set {2,3,5,7,11,13,17,19,23,29,31,37}.
func isPrimeMillerRabin(n uint64) bool {
	if n < 2 {
		return false
	}
	small := [...]uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31}
	for _, p := range small {
		if n == p {
			return true
		}
		if n%p == 0 {
			return false
		}
	}

	d := n - 1
	r := 0
	for d%2 == 0 {
		d /= 2
		r++
	}

	nBI := new(big.Int).SetUint64(n)
	dBI := new(big.Int).SetUint64(d)
	one := big.NewInt(1)
	nMinus1 := new(big.Int).Sub(nBI, one)

	for _, a := range [...]uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37} {
		if a%n == 0 {
			continue
		}
		x := new(big.Int).Exp(new(big.Int).SetUint64(a), dBI, nBI)
		if x.Cmp(one) == 0 || x.Cmp(nMinus1) == 0 {
			continue
		}
		composite := true
		for j := 1; j < r; j++ {
			x.Mul(x, x)
			x.Mod(x, nBI)
			if x.Cmp(nMinus1) == 0 {
				composite = false
				break
			}
		}
		if composite {
			return false
		}
	}
	return true
}

// factor answers /factor?n=NUM with trial division.
func factor(params map[string]string) (string, error) {
	n, err := strconv.ParseInt(params["n"], 10, 64)
	if err != nil || n < 2 {
		return "", fmt.Errorf("n must be integer >= 2")
	}
	orig := n
	var facts [][2]int64
	if n%2 == 0 {
		c := int64(0)
		for n%2 == 0 {
			n /= 2
			c++
		}
		facts = append(facts, [2]int64{2, c})
	}
	for d := int64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			c := int64(0)
			for n%d == 0 {
				n /= d
				c++
			}
			facts = append(facts, [2]int64{d, c})
		}
	}
	if n > 1 {
		facts = append(facts, [2]int64{n, 1})
	}
	b, _ := json.Marshal(map[string]any{"n": orig, "factors": facts})
	return string(b), nil
}

// piDigits answers /pi?digits=D[&algo=spigot|chudnovsky].
func piDigits(params map[string]string) (string, error) {
	const maxDigits = 4000
	d, err := strconv.Atoi(params["digits"])
	if err != nil || d < 1 {
		return "", fmt.Errorf("digits must be integer >= 1")
	}
	if d > maxDigits {
		d = maxDigits
	}
	algo := params["algo"]
	if algo == "" {
		algo = "chudnovsky"
	}
	var digits string
	switch algo {
	case "spigot":
		digits = piSpigot(d)
	case "chudnovsky":
		digits = piChudnovsky(d)
	default:
		return "", fmt.Errorf("algo must be spigot or chudnovsky")
	}
	// json.Marshal on a map sorts keys alphabetically; the wire format is
	// pinned (spec §8 S2: result must begin with `{"digits": ..., "algo":
	// ...`), so this uses a field-ordered struct instead of a map.
	b, _ := json.Marshal(struct {
		Digits int    `json:"digits"`
		Algo   string `json:"algo"`
		Pi     string `json:"pi"`
	}{Digits: d, Algo: algo, Pi: digits})
	return string(b), nil
}

// piSpigot produces "3." followed by n decimal digits using the
// Rabinowitz-Wagon spigot algorithm (base 10, unbounded-precision
// integer array, no floating point).
func piSpigot(n int) string {
	size := (10*(n+2))/3 + 1
	a := make([]int, size)
	for i := range a {
		a[i] = 2
	}
	out := make([]byte, 0, n+2)
	out = append(out, '3', '.')
	nines, predigit := 0, 0
	first := true
	havePre := false
	for digits := 0; digits < n; {
		carry := 0
		for i := size - 1; i > 0; i-- {
			x := a[i]*10 + carry*(i+1)
			den := 2*i + 1
			a[i] = x % den
			carry = x / den
		}
		x0 := a[0]*10 + carry
		a[0] = x0 % 10
		q := x0 / 10

		if first {
			first = false
			continue // discard the leading integer part (always 3)
		}
		switch {
		case q == 9:
			nines++
		case q == 10:
			out = append(out, byte(predigit+1)+'0')
			for ; nines > 0; nines-- {
				out = append(out, '0')
			}
			predigit = 0
			digits++
		default:
			if havePre {
				out = append(out, byte(predigit)+'0')
			}
			for ; nines > 0; nines-- {
				out = append(out, '9')
			}
			predigit = q
			havePre = true
			digits++
		}
	}
	out = append(out, byte(predigit)+'0')
	if len(out) > 2+n {
		out = out[:2+n]
	}
	return string(out)
}

// piChudnovsky computes pi via the Chudnovsky series using big.Float at
// a working precision scaled to the requested digit count.
func piChudnovsky(digits int) string {
	prec := uint(float64(digits)*3.33+64) + 64
	terms := digits/14 + 2

	c := new(big.Float).SetPrec(prec).SetFloat64(426880)
	sqrt10005 := new(big.Float).SetPrec(prec).SetFloat64(10005)
	sqrt10005.Sqrt(sqrt10005)
	c.Mul(c, sqrt10005)

	sum := new(big.Float).SetPrec(prec)
	mk := big.NewInt(1)
	lk := big.NewInt(13591409)
	xk := big.NewInt(1)

	const (
		lDelta = 545140134
	)
	for i := 0; i < terms; i++ {
		num := new(big.Float).SetPrec(prec).SetInt(lk)
		term := new(big.Float).SetPrec(prec).Quo(num, new(big.Float).SetPrec(prec).SetInt(xk))
		mkFloat := new(big.Float).SetPrec(prec).SetInt(mk)
		term.Mul(term, mkFloat)
		sum.Add(sum, term)

		// Update Mk, Lk, Xk for the next term.
		kk := int64(i + 1)
		numA := big.NewInt(6*kk - 5)
		numB := big.NewInt(2*kk - 1)
		numC := big.NewInt(6*kk - 1)
		mk.Mul(mk, numA)
		mk.Mul(mk, numB)
		mk.Mul(mk, numC)
		mk.Mul(mk, big.NewInt(24))
		denom := new(big.Int).Mul(big.NewInt(kk), big.NewInt(kk))
		denom.Mul(denom, big.NewInt(kk))
		mk.Div(mk, denom)

		lk.Add(lk, big.NewInt(lDelta))
		xk.Mul(xk, big.NewInt(-262537412640768000))
	}
	pi := new(big.Float).SetPrec(prec).Quo(c, sum)

	s := pi.Text('f', digits+10)
	if len(s) > digits+2 {
		s = s[:digits+2]
	}
	return s
}

// mandelbrot answers /mandelbrot?width=W&height=H&max_iter=I with a
// row-major iteration-count grid over the canonical [-2,1]x[-1,1] view.
func mandelbrot(params map[string]string) (string, error) {
	width, err := strconv.Atoi(params["width"])
	if err != nil || width < 1 {
		return "", fmt.Errorf("width must be integer >= 1")
	}
	height, err := strconv.Atoi(params["height"])
	if err != nil || height < 1 {
		return "", fmt.Errorf("height must be integer >= 1")
	}
	maxIter, err := strconv.Atoi(params["max_iter"])
	if err != nil || maxIter < 1 {
		maxIter = 100
	}
	rows := make([][]int, height)
	for y := 0; y < height; y++ {
		row := make([]int, width)
		for x := 0; x < width; x++ {
			cr := float64(x)/float64(width)*3.0 - 2.0
			ci := float64(y)/float64(height)*2.0 - 1.0
			c := complex(cr, ci)
			z := complex(0, 0)
			it := 0
			for ; it < maxIter && cmplx.Abs(z) <= 2; it++ {
				z = z*z + c
			}
			row[x] = it
		}
		rows[y] = row
	}
	b, _ := json.Marshal(map[string]any{"width": width, "height": height, "max_iter": maxIter, "rows": rows})
	return string(b), nil
}

// matrixMul answers /matrixmul?size=N&seed=S: multiply two NxN matrices
// seeded deterministically, and return the SHA-256 of the flattened
// result (the matrix itself is discarded; only its hash is observable).
func matrixMul(params map[string]string) (string, error) {
	size, err := strconv.Atoi(params["size"])
	if err != nil || size < 1 {
		return "", fmt.Errorf("size must be integer >= 1")
	}
	seed, err := strconv.ParseInt(params["seed"], 10, 64)
	if err != nil {
		seed = 1
	}
	rng := rand.New(rand.NewSource(seed))
	a := make([][]int64, size)
	b := make([][]int64, size)
	for i := 0; i < size; i++ {
		a[i] = make([]int64, size)
		b[i] = make([]int64, size)
		for j := 0; j < size; j++ {
			a[i][j] = rng.Int63n(1000)
			b[i][j] = rng.Int63n(1000)
		}
	}
	c := make([][]int64, size)
	for i := 0; i < size; i++ {
		c[i] = make([]int64, size)
		for j := 0; j < size; j++ {
			var sum int64
			for k := 0; k < size; k++ {
				sum += a[i][k] * b[k][j]
			}
			c[i][j] = sum
		}
	}
	h := sha256.New()
	for _, row := range c {
		for _, v := range row {
			fmt.Fprintf(h, "%d,", v)
		}
	}
	out, _ := json.Marshal(map[string]any{
		"size": size,
		"seed": seed,
		"hash": fmt.Sprintf("%x", h.Sum(nil)),
	})
	return string(out), nil
}

// fibonacci answers /fibonacci?num=N iteratively, O(n) time, O(1) space.
func fibonacci(params map[string]string) (string, error) {
	n, err := strconv.Atoi(params["num"])
	if err != nil || n < 0 {
		return "", fmt.Errorf("num must be integer >= 0")
	}
	a, bb := big.NewInt(0), big.NewInt(1)
	for i := 0; i < n; i++ {
		a, bb = bb, new(big.Int).Add(a, bb)
	}
	out, _ := json.Marshal(map[string]any{"num": n, "value": a.String()})
	return string(out), nil
}

// reverse answers /reverse?text=abc, reversing by rune for UTF-8 safety.
func reverse(params map[string]string) (string, error) {
	text := params["text"]
	r := []rune(text)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	out, _ := json.Marshal(struct {
		Original string `json:"original"`
		Reversed string `json:"reversed"`
	}{Original: text, Reversed: string(r)})
	return string(out), nil
}

// toUpper answers /toupper?text=abc.
func toUpper(params map[string]string) (string, error) {
	text := params["text"]
	out, _ := json.Marshal(struct {
		Original string `json:"original"`
		Upper    string `json:"upper"`
	}{Original: text, Upper: strings.ToUpper(text)})
	return string(out), nil
}

// randomInts answers /random?count=n&min=a&max=b with n uniform integers
// in [min,max].
func randomInts(params map[string]string) (string, error) {
	n, err := strconv.Atoi(params["count"])
	if err != nil || n < 1 {
		return "", fmt.Errorf("count must be integer >= 1")
	}
	min, err := strconv.Atoi(params["min"])
	if err != nil {
		min = 0
	}
	max, err := strconv.Atoi(params["max"])
	if err != nil {
		max = 100
	}
	if max < min {
		return "", fmt.Errorf("max must be >= min")
	}
	span := max - min + 1
	values := make([]int, n)
	for i := range values {
		values[i] = rand.Intn(span) + min
	}
	out, _ := json.Marshal(map[string]any{"values": values})
	return string(out), nil
}

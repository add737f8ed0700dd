package linalg

import (
	"errors"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestNewValidatesShape(t *testing.T) {
	_, err := New(2, 2, []float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(0, 3, nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewFromRows([][]float64{{1, 2}, {3}})
	test.That(t, err, test.ShouldNotBeNil)

	data := []float64{1, 2, 3, 4, 5, 6}
	m, err := New(2, 3, data)
	test.That(t, err, test.ShouldBeNil)
	data[0] = 100
	test.That(t, m.At(0, 0), test.ShouldEqual, 1.)
	test.That(t, m.At(1, 2), test.ShouldEqual, 6.)
	m.Set(1, 2, -1)
	test.That(t, m.Row(1), test.ShouldResemble, []float64{4, 5, -1})
	test.That(t, m.Col(0), test.ShouldResemble, []float64{1, 4})
}

func TestTransposeAndMul(t *testing.T) {
	a, err := NewFromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	test.That(t, err, test.ShouldBeNil)

	at := a.T()
	r, c := at.Dims()
	test.That(t, r, test.ShouldEqual, 3)
	test.That(t, c, test.ShouldEqual, 2)
	test.That(t, at.At(2, 1), test.ShouldEqual, 6.)

	ata, err := Mul(at, a)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ata.Row(0), test.ShouldResemble, []float64{17, 22, 27})
	test.That(t, ata.Row(2), test.ShouldResemble, []float64{27, 36, 45})

	_, err = Mul(a, a)
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestSolve(t *testing.T) {
	// needs a row swap: leading zero
	a, err := NewFromRows([][]float64{
		{0, 2, 1},
		{1, -1, 0},
		{3, 0, -2},
	})
	test.That(t, err, test.ShouldBeNil)
	b, err := New(3, 1, []float64{7, -1, -3})
	test.That(t, err, test.ShouldBeNil)

	x, err := Solve(a, b)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, x.At(0, 0), test.ShouldAlmostEqual, 1.)
	test.That(t, x.At(1, 0), test.ShouldAlmostEqual, 2.)
	test.That(t, x.At(2, 0), test.ShouldAlmostEqual, 3.)

	// inputs untouched
	test.That(t, a.At(0, 0), test.ShouldEqual, 0.)
	test.That(t, b.At(0, 0), test.ShouldEqual, 7.)
}

func TestSolveSingular(t *testing.T) {
	a, err := NewFromRows([][]float64{{1, 2}, {2, 4}})
	test.That(t, err, test.ShouldBeNil)
	_, err = Solve(a, Identity(2))
	test.That(t, errors.Is(err, ErrSingularMatrix), test.ShouldBeTrue)

	_, err = Inverse(Zeros(3, 3))
	test.That(t, errors.Is(err, ErrSingularMatrix), test.ShouldBeTrue)

	_, err = Solve(Zeros(2, 3), Zeros(2, 1))
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestInverseMatchesGonum(t *testing.T) {
	a, err := NewFromRows([][]float64{
		{4, 7, 2, 0},
		{3, 6, 1, 5},
		{2, 5, 3, 1},
		{1, 0, 2, 8},
	})
	test.That(t, err, test.ShouldBeNil)

	inv, err := Inverse(a)
	test.That(t, err, test.ShouldBeNil)

	var want mat.Dense
	test.That(t, want.Inverse(a.Dense()), test.ShouldBeNil)
	test.That(t, mat.EqualApprox(inv.Dense(), &want, 1e-9), test.ShouldBeTrue)

	prod, err := Mul(a, inv)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.EqualApprox(prod.Dense(), Identity(4).Dense(), 1e-9), test.ShouldBeTrue)
}

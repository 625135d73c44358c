// Package msm derives bond and angle parameters from quantum-chemical
// Hessians using the modified Seminario method, and folds the averaged
// results back into a force field schema.
package msm

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"vfcurate/internal/chem"
	"vfcurate/internal/forcefield"
)

const (
	hartreeToKcalPerMol = 627.509474
	bohrToAngstrom      = 0.529177211
)

// ErrBadHessian indicates a Hessian whose dimensions do not match the
// molecule's atom count.
var ErrBadHessian = errors.New("msm: hessian size does not match molecule")

// Parameters holds the harmonic terms derived from one Hessian, keyed
// by canonical bond and angle sites. Lengths are in angstrom, angles in
// degrees, force constants in kcal/mol per angstrom squared (bonds) or
// per radian squared (angles).
type Parameters struct {
	BondLengths    map[forcefield.Site]float64
	BondConstants  map[forcefield.Site]float64
	AngleValues    map[forcefield.Site]float64
	AngleConstants map[forcefield.Site]float64
}

// Calculate derives harmonic bond and angle parameters for the molecule
// from its Hessian. The Hessian is row-major 3N by 3N in atomic units
// (Hartree per Bohr squared); the molecule's coordinates are angstrom.
func Calculate(mol *chem.Molecule, hessian []float64) (*Parameters, error) {
	n := mol.NumAtoms()
	if len(hessian) != 9*n*n {
		return nil, fmt.Errorf("%w: %d values for %d atoms", ErrBadHessian, len(hessian), n)
	}

	// Atomic units to kcal/mol/angstrom^2 once, up front.
	scale := hartreeToKcalPerMol / (bohrToAngstrom * bohrToAngstrom)
	h := make([]float64, len(hessian))
	for i, v := range hessian {
		h[i] = v * scale
	}

	params := &Parameters{
		BondLengths:    make(map[forcefield.Site]float64),
		BondConstants:  make(map[forcefield.Site]float64),
		AngleValues:    make(map[forcefield.Site]float64),
		AngleConstants: make(map[forcefield.Site]float64),
	}

	for _, bond := range mol.Bonds {
		a, b := bond.A, bond.B
		// The interaction block is not symmetric in general; average
		// the two directions.
		kab, err := bondConstant(mol, h, n, a, b)
		if err != nil {
			return nil, err
		}
		kba, err := bondConstant(mol, h, n, b, a)
		if err != nil {
			return nil, err
		}
		// Canonical orientation, low index first, to match labeler keys.
		if a > b {
			a, b = b, a
		}
		site := forcefield.BondSite(a, b)
		params.BondConstants[site] = 0.5 * (kab + kba)
		params.BondLengths[site] = distance(mol, a, b)
	}

	for center := 0; center < n; center++ {
		nbrs := mol.Neighbors(center)
		for x := 0; x < len(nbrs); x++ {
			for y := x + 1; y < len(nbrs); y++ {
				a, c := nbrs[x], nbrs[y]
				k, theta, err := angleConstant(mol, h, n, a, center, c)
				if err != nil {
					return nil, err
				}
				if a > c {
					a, c = c, a
				}
				site := forcefield.AngleSite(a, center, c)
				params.AngleConstants[site] = k
				params.AngleValues[site] = theta
			}
		}
	}

	return params, nil
}

// bondConstant projects the eigenvectors of the a-b interaction block
// onto the bond axis. The block eigenvalues are negative for a bonded
// pair, so the minus sign yields a positive force constant.
func bondConstant(mol *chem.Molecule, h []float64, n, a, b int) (float64, error) {
	vals, vecs, err := pairEigen(h, n, a, b)
	if err != nil {
		return 0, err
	}
	u := unitVector(mol, a, b)
	k := 0.0
	for i := 0; i < 3; i++ {
		k += vals[i] * math.Abs(dot(u, vecs[i]))
	}
	return -0.5 * k, nil
}

// angleConstant evaluates the perpendicular-projection Seminario
// formula for the angle a-center-c.
func angleConstant(mol *chem.Molecule, h []float64, n, a, center, c int) (k, theta float64, err error) {
	uAB := unitVector(mol, center, a)
	uCB := unitVector(mol, center, c)

	uN := normalize(cross(uCB, uAB))
	uPA := cross(uN, uAB)
	uPC := cross(uCB, uN)

	valsAB, vecsAB, err := pairEigen(h, n, center, a)
	if err != nil {
		return 0, 0, err
	}
	valsCB, vecsCB, err := pairEigen(h, n, center, c)
	if err != nil {
		return 0, 0, err
	}

	sumFirst, sumSecond := 0.0, 0.0
	for i := 0; i < 3; i++ {
		sumFirst += valsAB[i] * math.Abs(dot(uPA, vecsAB[i]))
		sumSecond += valsCB[i] * math.Abs(dot(uPC, vecsCB[i]))
	}

	rAB := distance(mol, center, a)
	rCB := distance(mol, center, c)
	inv := 1/(rAB*rAB*sumFirst) + 1/(rCB*rCB*sumSecond)
	k = -0.5 / inv

	theta = math.Acos(dot(uAB, uCB)) * 180 / math.Pi
	return k, theta, nil
}

// pairEigen decomposes the 3x3 interaction block coupling atoms a and
// b, returning the real parts of its eigenvalues and eigenvectors.
func pairEigen(h []float64, n, a, b int) ([3]float64, [3][3]float64, error) {
	var vals [3]float64
	var vecs [3][3]float64

	block := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			block.Set(r, c, h[(3*a+r)*3*n+(3*b+c)])
		}
	}

	var eig mat.Eigen
	if ok := eig.Factorize(block, mat.EigenRight); !ok {
		return vals, vecs, fmt.Errorf("msm: eigendecomposition failed for atom pair (%d, %d)", a, b)
	}
	values := eig.Values(nil)
	var vectors mat.CDense
	eig.VectorsTo(&vectors)
	for i := 0; i < 3; i++ {
		vals[i] = real(values[i])
		for r := 0; r < 3; r++ {
			vecs[i][r] = real(vectors.At(r, i))
		}
	}
	return vals, vecs, nil
}

func distance(mol *chem.Molecule, a, b int) float64 {
	pa, pb := mol.Atoms[a], mol.Atoms[b]
	dx, dy, dz := pb.X-pa.X, pb.Y-pa.Y, pb.Z-pa.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// unitVector points from atom a toward atom b.
func unitVector(mol *chem.Molecule, a, b int) [3]float64 {
	pa, pb := mol.Atoms[a], mol.Atoms[b]
	return normalize([3]float64{pb.X - pa.X, pb.Y - pa.Y, pb.Z - pa.Z})
}

func normalize(v [3]float64) [3]float64 {
	norm := math.Sqrt(dot(v, v))
	return [3]float64{v[0] / norm, v[1] / norm, v[2] / norm}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

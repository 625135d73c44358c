package chem

// Element symbols for the part of the periodic table that shows up in
// force-field training sets. Unknown symbols map to atomic number 0.
var atomicNumbers = map[string]int{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8,
	"F": 9, "Ne": 10, "Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15,
	"S": 16, "Cl": 17, "Ar": 18, "K": 19, "Ca": 20, "Zn": 30, "Se": 34,
	"Br": 35, "Kr": 36, "I": 53, "Xe": 54,
}

var symbols = func() map[int]string {
	out := make(map[int]string, len(atomicNumbers))
	for sym, z := range atomicNumbers {
		out[z] = sym
	}
	return out
}()

// AtomicNumber returns the atomic number for an element symbol, or 0 for
// an unknown symbol.
func AtomicNumber(symbol string) int {
	return atomicNumbers[symbol]
}

// Symbol returns the element symbol for an atomic number, or "*" when
// the element is not in the table.
func Symbol(z int) string {
	if sym, ok := symbols[z]; ok {
		return sym
	}
	return "*"
}

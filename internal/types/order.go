package types

// Fractional indexing: a column is ordered by order_index ASC with id ASC as
// tie-breaker. Positions are real numbers so a client can always compute a
// new position from its two prospective neighbors without the server shifting
// anyone. The server accepts any finite index verbatim; these helpers define
// the protocol and are used wherever this process computes positions itself
// (issue creation, seeding).

// Above returns the index that sorts before next (top-of-column insertion).
func Above(next float64) float64 { return next - 1 }

// Below returns the index that sorts after prev (bottom-of-column insertion).
func Below(prev float64) float64 { return prev + 1 }

// Midpoint returns the index halfway between two neighbors. Repeated halving
// between the same pair exhausts float64 precision after roughly 52 splits;
// until then the result lies strictly between prev and next.
func Midpoint(prev, next float64) float64 { return (prev + next) / 2 }

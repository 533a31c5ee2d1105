package flow

// FoggThreshold is the minimum B = M*A*P score for a prompt to be worth
// sending at all.
const FoggThreshold = 1.5

// ShouldPrompt applies the Fogg behavior model: motivation times ability
// (the inverse of friction) times salience. Friction is floored at 0.1 so a
// frictionless task doesn't blow up the product.
func ShouldPrompt(motivation, friction, salience float64) bool {
	if friction < 0.1 {
		friction = 0.1
	}
	return motivation*(1/friction)*salience > FoggThreshold
}

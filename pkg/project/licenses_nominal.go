//go:build !sspl

package project

// ssplEnhancementsHeader is an additional message to include in the license
// text if using SSPL-licensed enhancements.
const ssplEnhancementsHeader = ``

// licenseTextSSPL is the Server Side Public License content to include in the
// license text if using SSPL-licensed enhancements.
const licenseTextSSPL = ``

package geo

import "strings"

// iso3166Alpha2 holds every officially assigned ISO 3166-1 alpha-2 code. Exceptionally or
// transitionally reserved codes (UK, EU, AC, IC, SU, YU, FX...) are deliberately absent.
var iso3166Alpha2 = newCodeSet(
	"AD AE AF AG AI AL AM AO AQ AR AS AT AU AW AX AZ",
	"BA BB BD BE BF BG BH BI BJ BL BM BN BO BQ BR BS BT BV BW BY BZ",
	"CA CC CD CF CG CH CI CK CL CM CN CO CR CU CV CW CX CY CZ",
	"DE DJ DK DM DO DZ",
	"EC EE EG EH ER ES ET",
	"FI FJ FK FM FO FR",
	"GA GB GD GE GF GG GH GI GL GM GN GP GQ GR GS GT GU GW GY",
	"HK HM HN HR HT HU",
	"ID IE IL IM IN IO IQ IR IS IT",
	"JE JM JO JP",
	"KE KG KH KI KM KN KP KR KW KY KZ",
	"LA LB LC LI LK LR LS LT LU LV LY",
	"MA MC MD ME MF MG MH MK ML MM MN MO MP MQ MR MS MT MU MV MW MX MY MZ",
	"NA NC NE NF NG NI NL NO NP NR NU NZ",
	"OM",
	"PA PE PF PG PH PK PL PM PN PR PS PT PW PY",
	"QA",
	"RE RO RS RU RW",
	"SA SB SC SD SE SG SH SI SJ SK SL SM SN SO SR SS ST SV SX SY SZ",
	"TC TD TF TG TH TJ TK TL TM TN TO TR TT TV TW TZ",
	"UA UG UM US UY UZ",
	"VA VC VE VG VI VN VU",
	"WF WS",
	"YE YT",
	"ZA ZM ZW",
)

func newCodeSet(rows ...string) map[string]struct{} {
	set := make(map[string]struct{}, 249)
	for _, row := range rows {
		for _, code := range strings.Fields(row) {
			set[code] = struct{}{}
		}
	}
	return set
}

// NormalizeCountry trims and upper-cases code and reports whether it is an assigned
// ISO 3166-1 alpha-2 country code.
func NormalizeCountry(code string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := iso3166Alpha2[upper]; !ok {
		return "", false
	}
	return upper, true
}

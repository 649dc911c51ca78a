package holiday

// Lunar holidays only resolve inside the years listed here.
const (
	LunarFirstYear = 2024
	LunarLastYear  = 2030
)

func pinned(md ...string) map[int]MonthDay {
	out := make(map[int]MonthDay, len(md))
	for i, s := range md {
		v, err := ParseMonthDay(s)
		if err != nil {
			panic("holiday: bad builtin date " + s)
		}
		out[LunarFirstYear+i] = v
	}
	return out
}

var builtins = []Definition{
	{ID: "yuandan", Name: "元旦", Month: 1, Day: 1, DurationDays: 1,
		Aliases: []string{"新年"}, Description: "公历新年的第一天"},
	{ID: "chunjie", Name: "春节", Month: 2, Day: 1, DurationDays: 7,
		Aliases: []string{"新春", "Spring Festival"}, Description: "农历正月初一，阖家团圆、辞旧迎新",
		Dates: pinned("0210", "0129", "0217", "0206", "0126", "0213", "0203")},
	{ID: "yuanxiao", Name: "元宵节", Month: 2, Day: 15, DurationDays: 1,
		Aliases: []string{"上元节"}, Description: "农历正月十五，赏花灯、吃元宵",
		Dates: pinned("0224", "0212", "0303", "0220", "0209", "0228", "0218")},
	{ID: "funv", Name: "妇女节", Month: 3, Day: 8, DurationDays: 1,
		Aliases: []string{"女神节"}, Description: "国际劳动妇女节"},
	{ID: "zhishu", Name: "植树节", Month: 3, Day: 12, DurationDays: 1,
		Description: "绿化祖国，植树造林"},
	{ID: "qingming", Name: "清明节", Month: 4, Day: 5, DurationDays: 1,
		Aliases: []string{"踏青节"}, Description: "踏青郊游，缅怀先人"},
	{ID: "laodong", Name: "劳动节", Month: 5, Day: 1, DurationDays: 3,
		Aliases: []string{"五一"}, Description: "国际劳动节，致敬每一位劳动者"},
	{ID: "qingnian", Name: "青年节", Month: 5, Day: 4, DurationDays: 1,
		Description: "五四青年节"},
	{ID: "ertong", Name: "儿童节", Month: 6, Day: 1, DurationDays: 1,
		Aliases: []string{"六一"}, Description: "国际儿童节"},
	{ID: "duanwu", Name: "端午节", Month: 6, Day: 3, DurationDays: 1,
		Aliases: []string{"龙舟节"}, Description: "农历五月初五，赛龙舟、吃粽子",
		Dates: pinned("0610", "0531", "0619", "0609", "0528", "0616", "0605")},
	{ID: "jiandang", Name: "建党节", Month: 7, Day: 1, DurationDays: 1},
	{ID: "jianjun", Name: "建军节", Month: 8, Day: 1, DurationDays: 1},
	{ID: "qixi", Name: "七夕节", Month: 8, Day: 7, DurationDays: 1,
		Aliases: []string{"乞巧节"}, Description: "农历七月初七，牛郎织女鹊桥相会",
		Dates: pinned("0810", "0829", "0819", "0808", "0826", "0815", "0804")},
	{ID: "jiaoshi", Name: "教师节", Month: 9, Day: 10, DurationDays: 1,
		Description: "感谢师恩"},
	{ID: "zhongqiu", Name: "中秋节", Month: 9, Day: 15, DurationDays: 3,
		Aliases: []string{"月圆节", "Moon Festival"}, Description: "农历八月十五，赏月团圆",
		Dates: pinned("0917", "1006", "0925", "0915", "1003", "0922", "0912")},
	{ID: "guoqing", Name: "国庆节", Month: 10, Day: 1, DurationDays: 7,
		Aliases: []string{"十一", "National Day"}, Description: "中华人民共和国国庆"},
	{ID: "chongyang", Name: "重阳节", Month: 10, Day: 9, DurationDays: 1,
		Aliases: []string{"敬老节"}, Description: "农历九月初九，登高敬老",
		Dates: pinned("1011", "1029", "1018", "1007", "1026", "1015", "1004")},
}

func init() {
	for i := range builtins {
		builtins[i].Source = SourceBuiltin
	}
}

// Builtins returns a copy of the builtin table.
func Builtins() []Definition {
	return append([]Definition(nil), builtins...)
}

func builtinByName(name string) (Definition, bool) {
	for _, d := range builtins {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

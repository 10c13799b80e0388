package catalog

var iconStyle = []string{
	"Pixar animation style",
	"soft studio lighting",
	"cute",
	"vibrant colors",
	"clay material",
	"isometric view",
}

var heroes = []Item{
	{ID: "dino", Kind: KindHero, DisplayName: "霸王龙", Emoji: "🦖", Trait: "强壮", Description: "A cute T-Rex dinosaur wearing a superhero cape, 3d pixar style, friendly smile"},
	{ID: "elsa", Kind: KindHero, DisplayName: "冰雪公主", Emoji: "❄️", Trait: "魔法", Description: "A cute ice princess with a sparkling blue dress and crown, 3d pixar style, magical"},
	{ID: "paw", Kind: KindHero, DisplayName: "汪汪队", Emoji: "🐶", Trait: "勇敢", Description: "A cute rescue puppy with a high-tech backpack and helmet, 3d pixar style, heroic pose"},
	{ID: "robot", Kind: KindHero, DisplayName: "机甲战士", Emoji: "🤖", Trait: "聪明", Description: "A cute futuristic robot with glowing lights, rounded edges, 3d pixar style, friendly"},
}

var worries = []Item{
	{ID: "miss_mom", Kind: KindWorry, DisplayName: "想妈妈", Emoji: "🥺", MonsterName: "黏黏怪", Description: "A cute round sticky slime monster, pink color, slightly sad eyes, 3d pixar style, soft texture"},
	{ID: "food", Kind: KindWorry, DisplayName: "不吃饭", Emoji: "🥦", MonsterName: "挑食魔王", Description: "A funny broccoli monster with a grumpy face, 3d pixar style, vegetable texture"},
	{ID: "nap", Kind: KindWorry, DisplayName: "不睡觉", Emoji: "💤", MonsterName: "瞌睡虫", Description: "A sleepy pillow-shaped monster with heavy eyelids, holding a blanket, 3d pixar style"},
	{ID: "shy", Kind: KindWorry, DisplayName: "害羞", Emoji: "😶", MonsterName: "静音幽灵", Description: "A shy cute ghost, semi-transparent white, hiding behind hands, 3d pixar style"},
}

// Default returns the built-in catalog: heroes first, then worries.
func Default() *Catalog {
	items := make([]Item, 0, len(heroes)+len(worries))
	for _, group := range [][]Item{heroes, worries} {
		for _, item := range group {
			item.StyleHints = iconStyle
			items = append(items, item)
		}
	}
	return MustNew(items...)
}

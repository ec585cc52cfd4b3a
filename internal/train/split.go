package train

import (
	"math/rand"
	"sort"
)

// splitIndexes shuffles rows with the given seed and carves off a test
// partition. The same seed always yields the same split.
func splitIndexes(rows []int, testSize float64, seed int64) (train, test []int) {
	shuffled := append([]int(nil), rows...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	nTest := int(float64(len(shuffled))*testSize + 0.5)
	if nTest < 1 {
		nTest = 1
	}
	if nTest >= len(shuffled) {
		nTest = len(shuffled) - 1
	}
	return shuffled[nTest:], shuffled[:nTest]
}

// stratifiedSplit splits per class label so rare classes keep
// representation in both partitions, as the original workflow does for
// classification targets.
func stratifiedSplit(rows []int, labels []string, testSize float64, seed int64) (train, test []int) {
	groups := make(map[string][]int)
	for k, i := range rows {
		groups[labels[k]] = append(groups[labels[k]], i)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rng := rand.New(rand.NewSource(seed))
	for _, key := range keys {
		group := groups[key]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		nTest := int(float64(len(group))*testSize + 0.5)
		if nTest >= len(group) {
			nTest = len(group) - 1
		}
		if nTest < 0 {
			nTest = 0
		}
		test = append(test, group[:nTest]...)
		train = append(train, group[nTest:]...)
	}

	// A degenerate stratification can still leave one side empty.
	if len(test) == 0 && len(train) > 1 {
		test = append(test, train[len(train)-1])
		train = train[:len(train)-1]
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// downsample deterministically caps the row set. The surviving rows are
// returned in ascending order so later processing stays stable.
func downsample(rows []int, maxRows int, seed int64) []int {
	if maxRows <= 0 || len(rows) <= maxRows {
		return rows
	}
	shuffled := append([]int(nil), rows...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	kept := shuffled[:maxRows]
	sort.Ints(kept)
	return kept
}
